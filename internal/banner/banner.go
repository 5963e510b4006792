package banner

import (
	"strings"
	"sync"

	"followreq/pkg/model"
)

// Position 用户在列表中的位置
type Position struct {
	Index      int // 从0开始
	Position   int // 从1开始，用于展示
	Total      int
	HasNext    bool
	NextUserID model.UserID
}

// Locate 查找用户在列表中的位置
func Locate(users []model.PendingUser, userID model.UserID) (Position, bool) {
	for i, u := range users {
		if u.ID != userID {
			continue
		}
		p := Position{Index: i, Position: i + 1, Total: len(users)}
		if i+1 < len(users) {
			p.HasNext = true
			p.NextUserID = users[i+1].ID
		}
		return p, true
	}
	return Position{Total: len(users)}, false
}

// NextAfter 返回列表中紧随其后的用户ID，用于操作前预先确定自动跳转目标
func NextAfter(users []model.PendingUser, userID model.UserID) (model.UserID, bool) {
	p, ok := Locate(users, userID)
	if !ok || !p.HasNext {
		return "", false
	}
	return p.NextUserID, true
}

// FindByUsername 按用户名查找，忽略大小写
func FindByUsername(users []model.PendingUser, username string) (model.PendingUser, bool) {
	name := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if name == "" {
		return model.PendingUser{}, false
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, name) {
			return u, true
		}
	}
	return model.PendingUser{}, false
}

// View 组装横幅数据
func View(users []model.PendingUser, userID model.UserID) (model.BannerView, bool) {
	p, ok := Locate(users, userID)
	if !ok {
		return model.BannerView{}, false
	}
	return model.BannerView{
		User:       users[p.Index],
		Position:   p.Position,
		Total:      p.Total,
		HasNext:    p.HasNext,
		NextUserID: p.NextUserID,
	}, true
}

// State 当前展示的横幅，同一时刻最多一个
type State struct {
	mu      sync.Mutex
	current *model.BannerView
}

// Show 展示横幅，替换已有的
func (s *State) Show(v model.BannerView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &v
}

// Hide 隐藏横幅
func (s *State) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Current 返回当前横幅
func (s *State) Current() (model.BannerView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.BannerView{}, false
	}
	return *s.current, true
}

// HideIf 当前横幅属于该用户时隐藏
func (s *State) HideIf(userID model.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.User.ID != userID {
		return false
	}
	s.current = nil
	return true
}
