package session

import (
	"regexp"

	"followreq/pkg/model"
	"followreq/pkg/traffic"
)

var (
	viewerIDPattern    = regexp.MustCompile(`(?i)"viewerId":"(\w+)"`)
	appScopedPattern   = regexp.MustCompile(`(?i)"appScopedIdentity":"(\w+)"`)
	csrfTokenPattern   = regexp.MustCompile(`(?i)"csrf_token":"(.+?)"`)
	appIDPattern       = regexp.MustCompile(`(?i)"X-IG-App-ID":"(.+?)"`)
	rolloutHashPattern = regexp.MustCompile(`(?i)"rollout_hash":"(.+?)"`)
)

// 可选令牌与其对应的请求头
var optionalTokens = []struct {
	header  string
	pattern *regexp.Regexp
}{
	{"X-Csrftoken", csrfTokenPattern},
	{"X-Ig-App-Id", appIDPattern},
	{"X-Instagram-Ajax", rolloutHashPattern},
}

const (
	HeaderClaim  = "X-Ig-Www-Claim"
	HeaderCookie = "Cookie"
)

// DefaultHeaders 每个请求固定携带的头部
func DefaultHeaders() traffic.Header {
	h := make(traffic.Header)
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("X-Asbd-Id", "129477")
	return h
}

// Derive 从页面源码中推导会话上下文。
// 未匹配到身份时返回仅含默认头部的上下文和 false，调用方应稍后重试。
func Derive(markup string) (*model.SessionContext, bool) {
	sc := &model.SessionContext{Headers: DefaultHeaders()}

	identity := firstGroup(viewerIDPattern, markup)
	if identity == "" {
		identity = firstGroup(appScopedPattern, markup)
	}
	if identity == "" {
		return sc, false
	}
	sc.IdentityID = identity

	for _, tok := range optionalTokens {
		if v := firstGroup(tok.pattern, markup); v != "" {
			sc.Headers.Set(tok.header, v)
		}
	}
	return sc, true
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
