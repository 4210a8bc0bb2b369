package model

import "time"

// DecodedIdentity はトークンのペイロードから取り出した未検証のクレーム。
// UIの表示制御にのみ使用し、永続化しない。必要なたびに再計算する。
type DecodedIdentity struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired はnow時点でトークンの有効期限が切れているかを返す。
// expクレームが無い場合は期限切れとみなさない。
func (d *DecodedIdentity) Expired(now time.Time) bool {
	if d.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(d.ExpiresAt)
}

// RegisterInput はアカウント登録APIのリクエストボディ。
type RegisterInput struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

// LoginInput はログインAPIのリクエストボディ。
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult はログイン・登録APIのレスポンス。
// 登録APIはトークンを返さない場合がある。
type AuthResult struct {
	Token string `json:"token"`
}
