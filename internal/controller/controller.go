// Package controller は画面ごとの状態管理を提供する。
//
// 各コントローラはAPIクライアントとセッションを明示的に受け取り、
// 失敗をすべて表示用メッセージに変換して保持する。失敗で状態が中途半端に変わることはない。
// 状態はミューテックスで保護し、ネットワーク呼び出し中はロックを保持しない。
package controller

import (
	"context"

	"github.com/hitoshi/eventdesk/internal/model"
)

// EventsAPI はコントローラが使うイベントAPIの操作。
// api.Clientが実装する。
type EventsAPI interface {
	ListEvents(ctx context.Context, criteria model.FilterCriteria) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, in model.EventInput) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListTags(ctx context.Context) ([]model.Tag, error)
}

// AuthAPI はコントローラが使う認証APIの操作。
type AuthAPI interface {
	Register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error)
	Login(ctx context.Context, in model.LoginInput) (*model.AuthResult, error)
}

// SessionReader は現在のセッションを参照する操作。
// session.Sessionが実装する。
type SessionReader interface {
	Get() (token string, ok bool)
	Identity() (*model.DecodedIdentity, error)
	UserID() string
}

// SessionWriter はログイン・ログアウトでセッションを書き換える操作。
type SessionWriter interface {
	SessionReader
	Set(token string) error
	Clear() error
}

// State は画面の読み込み状態。
type State int

const (
	// StateIdle は未読み込み。
	StateIdle State = iota
	// StateLoading は読み込み中。
	StateLoading
	// StateLoaded は読み込み完了。
	StateLoaded
	// StateError は読み込み失敗。
	StateError
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Confirmer は破壊的な操作の前にユーザーの確認を取る。
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc は関数をConfirmerとして使うためのアダプタ。
type ConfirmFunc func(prompt string) bool

// Confirm はf(prompt)を返す。
func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}
