package cdp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/tidwall/gjson"

	"followreq/pkg/model"
)

// ToTargetInfo 将 DevTools 目标转换为中立模型
func ToTargetInfo(t *devtool.Target) model.TargetInfo {
	if t == nil {
		return model.TargetInfo{}
	}
	return model.TargetInfo{
		ID:    model.TargetID(t.ID),
		Type:  string(t.Type),
		URL:   t.URL,
		Title: t.Title,
	}
}

// MatchHost 目标地址的主机名是否为 host 或其子域
func MatchHost(rawURL, host string) bool {
	if host == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(host)
	return h == host || strings.HasSuffix(h, "."+host)
}

// CookieHeader 将浏览器 cookie 拼接为 Cookie 请求头
func CookieHeader(cookies []network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// EvalString 读取 Runtime.evaluate 的字符串结果，null 与 undefined 视为空字符串
func EvalString(reply *runtime.EvaluateReply) (string, error) {
	if reply == nil {
		return "", fmt.Errorf("empty evaluate reply")
	}
	if reply.ExceptionDetails != nil {
		return "", fmt.Errorf("evaluate exception: %s", reply.ExceptionDetails.Text)
	}
	if len(reply.Result.Value) == 0 {
		return "", nil
	}
	v := gjson.ParseBytes(reply.Result.Value)
	if v.Type == gjson.Null {
		return "", nil
	}
	return v.String(), nil
}
