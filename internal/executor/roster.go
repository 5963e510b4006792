package executor

import (
	"sync"

	"followreq/pkg/model"
)

// Roster 本地持有的已加载用户集合，操作成功后在这里更新
type Roster struct {
	mu    sync.RWMutex
	users []model.PendingUser
}

// NewRoster 创建空集合
func NewRoster() *Roster {
	return &Roster{}
}

// Load 整体替换集合内容
func (r *Roster) Load(users []model.PendingUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = model.CloneUsers(users)
}

// List 返回当前集合的副本
func (r *Roster) List() []model.PendingUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.CloneUsers(r.users)
}

// Len 集合大小
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Get 按ID查找
func (r *Roster) Get(id model.UserID) (model.PendingUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, true
		}
	}
	return model.PendingUser{}, false
}

// Remove 删除用户，不存在时返回 false
func (r *Roster) Remove(id model.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.users {
		if u.ID == id {
			r.users = append(r.users[:i:i], r.users[i+1:]...)
			return true
		}
	}
	return false
}

// Update 原地修改用户记录
func (r *Roster) Update(id model.UserID, fn func(*model.PendingUser)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == id {
			fn(&r.users[i])
			return true
		}
	}
	return false
}
