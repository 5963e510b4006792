package rules

import (
	"strconv"
	"strings"
	"sync"

	"followreq/pkg/model"
)

// Engine 已加载名单的过滤器：固定条件 + 搜索关键字
type Engine struct {
	mu    sync.RWMutex
	match model.Match
}

func New(m model.Match) *Engine { return &Engine{match: m} }

// Update 替换固定条件
func (e *Engine) Update(m model.Match) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.match = m
}

// Filter 保留满足固定条件、且用户名或全名包含 query 的用户，忽略大小写；query 为空时只应用固定条件
func (e *Engine) Filter(users []model.PendingUser, query string) []model.PendingUser {
	e.mu.RLock()
	m := e.match
	e.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.PendingUser, 0, len(users))
	for _, u := range users {
		if !matchUser(u, m) {
			continue
		}
		if q != "" && !containsFold(u.Username, q) && !containsFold(u.FullName, q) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Matches 用户是否满足固定条件
func (e *Engine) Matches(u model.PendingUser) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return matchUser(u, e.match)
}

func matchUser(u model.PendingUser, m model.Match) bool {
	ok := true
	if len(m.AllOf) > 0 {
		ok = ok && allOf(u, m.AllOf)
	}
	if len(m.AnyOf) > 0 {
		ok = ok && anyOf(u, m.AnyOf)
	}
	if len(m.NoneOf) > 0 {
		ok = ok && noneOf(u, m.NoneOf)
	}
	return ok
}

func allOf(u model.PendingUser, cs []model.Condition) bool {
	for i := range cs {
		if !cond(u, cs[i]) {
			return false
		}
	}
	return true
}

func anyOf(u model.PendingUser, cs []model.Condition) bool {
	for i := range cs {
		if cond(u, cs[i]) {
			return true
		}
	}
	return false
}

func noneOf(u model.PendingUser, cs []model.Condition) bool { return !anyOf(u, cs) }

func cond(u model.PendingUser, c model.Condition) bool {
	switch c.Field {
	case model.FieldUsername:
		return compare(u.Username, c)
	case model.FieldFullName:
		return compare(u.FullName, c)
	case model.FieldFollowed:
		want, err := strconv.ParseBool(c.Value)
		if err != nil {
			return false
		}
		return u.FollowedByViewer == want
	default:
		return false
	}
}

func compare(v string, c model.Condition) bool {
	switch c.Op {
	case model.OpEquals:
		return strings.EqualFold(v, c.Value)
	case model.OpContains:
		return containsFold(v, strings.ToLower(c.Value))
	case model.OpPrefix:
		return strings.HasPrefix(strings.ToLower(v), strings.ToLower(c.Value))
	case model.OpRegex:
		return matchRegex(v, c.Value)
	default:
		return false
	}
}

// containsFold lowerSub 须已转小写
func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}
