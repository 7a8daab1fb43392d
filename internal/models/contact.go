package models

import "time"

// ContactCategory 联系人分类
type ContactCategory string

const (
	CategoryCircle    ContactCategory = "CIRCLE"    // 亲密圈（家人、挚友）
	CategoryGroup     ContactCategory = "GROUP"     // 小组（同学、同事）
	CategoryCommunity ContactCategory = "COMMUNITY" // 社区（志愿者、保安）
)

// CategorySelectionOrder 收件人选择时的分类遍历顺序（固定 CIRCLE → GROUP → COMMUNITY）
var CategorySelectionOrder = []ContactCategory{
	CategoryCircle,
	CategoryGroup,
	CategoryCommunity,
}

// Valid 检查分类是否合法
func (c ContactCategory) Valid() bool {
	switch c {
	case CategoryCircle, CategoryGroup, CategoryCommunity:
		return true
	}
	return false
}

// Contact 紧急联系人（对应 contacts 表）
// 电话号码在存储层不强制唯一，去重只在单次收件人选择中进行
type Contact struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	PhoneNumber string          `json:"phone_number" db:"phone_number"`
	Category    ContactCategory `json:"category" db:"category"`
	IsEnabled   bool            `json:"is_enabled" db:"is_enabled"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
