package model

import (
	"time"

	"followreq/pkg/traffic"
)

type TargetID string
type UserID = string

// SessionContext 从页面内嵌状态中推导出的会话上下文
type SessionContext struct {
	IdentityID string          // 为空表示未识别到登录用户
	Headers    traffic.Header // 请求远端接口时附带的头部
}

// HasIdentity 是否已识别到登录用户
func (s *SessionContext) HasIdentity() bool {
	return s != nil && s.IdentityID != ""
}

// PendingUser 待处理关注请求中的用户
type PendingUser struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	FullName          string `json:"fullName"`
	ProfilePicURL     string `json:"profilePicUrl"`
	FollowedByViewer  bool   `json:"followedByViewer"`
	FollowsViewer     bool   `json:"followsViewer"`
	RequestedByViewer bool   `json:"requestedByViewer"`
	MutualCount       int    `json:"mutualCount"`
	SocialContext     string `json:"socialContext,omitempty"`
	IsPendingRequest  bool   `json:"isPendingRequest"`
}

// CloneUsers 复制用户列表，避免调用方修改共享快照
func CloneUsers(in []PendingUser) []PendingUser {
	if in == nil {
		return nil
	}
	out := make([]PendingUser, len(in))
	copy(out, in)
	return out
}

// Intent 展示层发起的一次用户操作
type Intent struct {
	Kind        ActionKind
	UserID      UserID
	AutoAdvance bool
}

// Outcome 操作结果
type Outcome struct {
	Kind       ActionKind
	UserID     UserID
	NextUserID UserID // 自动跳转的下一个用户，仅 accept/reject 成功且开启自动跳转时有值
	Err        error
}

// OK 操作是否成功
func (o Outcome) OK() bool { return o.Err == nil }

// BannerView 资料页横幅所需的数据
type BannerView struct {
	User       PendingUser `json:"user"`
	Position   int         `json:"position"`
	Total      int         `json:"total"`
	HasNext    bool        `json:"hasNext"`
	NextUserID UserID      `json:"nextUserId,omitempty"`
}

// ActionResult 操作结果分类
type ActionResult string

const (
	ResultOK           ActionResult = "ok"
	ResultRateLimited  ActionResult = "rate_limited"
	ResultAPIError     ActionResult = "api_error"
	ResultNetworkError ActionResult = "network_error"
	ResultInFlight     ActionResult = "in_flight"
	ResultFailed       ActionResult = "failed"
)

// ActionRecord 操作流水
type ActionRecord struct {
	ID     string       `json:"id"`
	Kind   ActionKind   `json:"kind"`
	UserID UserID       `json:"userId"`
	Result ActionResult `json:"result"`
	Error  string       `json:"error,omitempty"`
	At     time.Time    `json:"at"`
}

// EventType 事件类型
type EventType string

const (
	EventListInvalidated EventType = "list_invalidated"
	EventAction          EventType = "action"
)

// Event 推送给展示层的事件
type Event struct {
	Type      EventType    `json:"type"`
	Kind      ActionKind   `json:"kind"`
	UserID    UserID       `json:"userId,omitempty"`
	Result    ActionResult `json:"result,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// TargetInfo 浏览器中的页面目标
type TargetInfo struct {
	ID    TargetID `json:"id"`
	Type  string   `json:"type"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
}
