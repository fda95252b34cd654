// Package model はドメインモデルを定義する。
package model

import "time"

// SystemUserName は認証無効時にタスク操作者として記録される名前。
const SystemUserName = "System User"

// User はログイン可能な利用者を表す。
// PasswordHashにはbcryptハッシュのみを保持し、平文は保持しない。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Actor はリクエストの操作者を表す。
// UserIDがnilの場合は匿名またはシステム利用者である。
type Actor struct {
	UserID *int64
	Name   string
}

// SystemActor は認証無効時に全リクエストへ割り当てられる操作者。
var SystemActor = Actor{Name: SystemUserName}

// ActorFromUser はユーザーからActorを生成する。
func ActorFromUser(u *User) Actor {
	id := u.ID
	return Actor{UserID: &id, Name: u.Username}
}

// IsAuthenticated はログイン済みユーザーであるかを返す。
func (a Actor) IsAuthenticated() bool {
	return a.UserID != nil
}

// Session はサーバー側で保持するログインセッションを表す。
// セッションCookieのトークンはIDを参照し、行が削除されると無効になる。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
