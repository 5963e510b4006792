package model

import (
	"fmt"
	"strings"
)

// ActionKind 变更类操作的种类
type ActionKind int

const (
	ActionAccept ActionKind = iota + 1
	ActionReject
	ActionFollow
	ActionUnfollow
)

// ActionKinds 全部操作种类，按固定顺序
var ActionKinds = []ActionKind{ActionAccept, ActionReject, ActionFollow, ActionUnfollow}

func (k ActionKind) String() string {
	switch k {
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	case ActionFollow:
		return "follow"
	case ActionUnfollow:
		return "unfollow"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Valid 是否为已知的操作种类
func (k ActionKind) Valid() bool {
	return k >= ActionAccept && k <= ActionUnfollow
}

// RemovesRequest accept/reject 会把请求从待处理列表中移除
func (k ActionKind) RemovesRequest() bool {
	return k == ActionAccept || k == ActionReject
}

// ParseActionKind 解析操作种类，未知值返回错误
func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "approve":
		return ActionAccept, nil
	case "reject", "ignore":
		return ActionReject, nil
	case "follow":
		return ActionFollow, nil
	case "unfollow":
		return ActionUnfollow, nil
	default:
		return 0, fmt.Errorf("unknown action kind %q", s)
	}
}

// MarshalText 以字符串形式序列化
func (k ActionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid action kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText 从字符串反序列化
func (k *ActionKind) UnmarshalText(b []byte) error {
	v, err := ParseActionKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
