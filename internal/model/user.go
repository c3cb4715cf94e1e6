// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Phone はユーザーが明示的に登録するまでnil。
type User struct {
	ID           string
	Email        string
	Name         string
	Picture      string
	Phone        *string
	ConsentGiven bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// Data にはセッション確立時点のプリンシパルのスナップショットを保持する。
type Session struct {
	ID        string
	UserID    string
	Data      SessionData
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionData はセッションに紐づくユーザー情報のスナップショット。
// /user/me はDBのusersテーブルではなくこのスナップショットを返す。
type SessionData struct {
	UserID         string  `json:"user_id"`
	ProviderUserID string  `json:"provider_user_id"`
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	Picture        string  `json:"picture,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	ConsentGiven   bool    `json:"consent_given"`
}
