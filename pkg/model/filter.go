package model

// ConditionField 条件作用的字段
type ConditionField string

const (
	FieldUsername ConditionField = "username"
	FieldFullName ConditionField = "full_name"
	FieldFollowed ConditionField = "followed"
)

// ConditionOp 条件的匹配方式
type ConditionOp string

const (
	OpEquals   ConditionOp = "equals"
	OpContains ConditionOp = "contains"
	OpPrefix   ConditionOp = "prefix"
	OpRegex    ConditionOp = "regex"
)

// Condition 单个过滤条件，字符串比较忽略大小写，regex 除外
type Condition struct {
	Field ConditionField `json:"field" yaml:"field"`
	Op    ConditionOp    `json:"op" yaml:"op"`
	Value string         `json:"value" yaml:"value"`
}

// Match 组合条件
type Match struct {
	AllOf  []Condition `json:"allOf,omitempty" yaml:"all_of,omitempty"`
	AnyOf  []Condition `json:"anyOf,omitempty" yaml:"any_of,omitempty"`
	NoneOf []Condition `json:"noneOf,omitempty" yaml:"none_of,omitempty"`
}

// Empty 是否没有任何条件
func (m Match) Empty() bool {
	return len(m.AllOf) == 0 && len(m.AnyOf) == 0 && len(m.NoneOf) == 0
}
