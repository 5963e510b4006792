package traffic

import (
	"net/http"
	"strings"
)

// Header 大小写不敏感的头部集合，键统一存为小写
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// ApplyTo 写入标准库请求头，空值跳过
func (h Header) ApplyTo(dst http.Header) {
	for k, v := range h {
		if v == "" {
			continue
		}
		dst.Set(k, v)
	}
}
