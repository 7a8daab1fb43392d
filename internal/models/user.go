package models

import "time"

// User 当前用户档案（对应 users 表，逻辑上至多一条"当前用户"记录）
// 不存在当前用户是合法状态，报警流程回退为匿名署名
type User struct {
	UserID      string    `json:"user_id" db:"user_id"`
	FullName    string    `json:"full_name" db:"full_name"`
	Email       string    `json:"email" db:"email"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AnonymousUserName 无当前用户时的匿名署名
const AnonymousUserName = "A ComPow User"

// AnonymousUserID 无当前用户时的占位 ID
const AnonymousUserID = "unknown"
