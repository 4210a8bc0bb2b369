package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// クライアント内で判定するエラー。
// いずれもコントローラ境界で表示用メッセージに変換され、プロセスを停止させない。
var (
	// ErrAuthRequired はトークンが必要な操作をトークン無しで実行しようとしたことを示す。
	// ネットワーク呼び出しの前に返す。
	ErrAuthRequired = errors.New("not authenticated")
	// ErrMalformedToken はトークンのデコードに失敗したことを示す。未認証として扱う。
	ErrMalformedToken = errors.New("malformed token")
	// ErrNotConfirmed は削除などの破壊的操作がユーザーに確認されなかったことを示す。
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrNotLoaded は編集対象のイベントを読み込めていないフォームを保存しようとしたことを示す。
	ErrNotLoaded = errors.New("event not loaded")
)

// APIError はサーバーまたは通信の失敗を表す統一エラーフォーマット。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	StatusCode int    // HTTPステータス（通信エラー時は0）
	Code       string // エラーコード
	Message    string // サーバーが返したメッセージ（無い場合は空）
	Category   string // カテゴリ: auth, validation, event, system
	Action     string // ユーザー向け対処方法
	cause      error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %d %s", e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap は元になったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeNetwork       = "NETWORK_ERROR"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeServer        = "SERVER_ERROR"
	ErrCodeInvalidFilter = "INVALID_FILTER"
	ErrCodeUnexpected    = "UNEXPECTED_STATUS"
)

// NewNetworkError は通信失敗（レスポンス無し）のエラーを生成する。
func NewNetworkError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Category: "system",
		Action:   "Check EVENTS_API_URL and your network connection, then retry.",
		cause:    err,
	}
}

// NewStatusError はHTTPステータスとサーバーのメッセージからエラーを生成する。
func NewStatusError(statusCode int, code, message string) *APIError {
	e := &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
	switch code {
	case ErrCodeUnauthorized:
		e.Category = "auth"
		e.Action = "Run `eventdesk login` and try again."
	case ErrCodeForbidden:
		e.Category = "auth"
		e.Action = "Only the owner of an event can change it."
	case ErrCodeNotFound:
		e.Category = "event"
		e.Action = "Check the event ID."
	case ErrCodeBadRequest:
		e.Category = "validation"
		e.Action = "Fix the highlighted fields and resubmit."
	case ErrCodeRateLimited:
		e.Category = "system"
		e.Action = "Wait a moment and retry."
	default:
		e.Category = "system"
		e.Action = "Retry later."
	}
	return e
}

// NewInvalidFilterError は無効な絞り込み条件のエラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  "invalid filter: " + reason,
		Category: "validation",
		Action:   "Use a tag name and past or upcoming.",
	}
}

// ValidationError は必須項目の未入力など、入力値の検証失敗を表す。
// Fieldsはフィールド名（JSON名）から表示用メッセージへのマップ。
type ValidationError struct {
	Fields map[string]string
}

// Error はerrorインターフェースを実装する。
// フィールド名順に並べるので同一入力に対して常に同一の文字列になる。
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return strings.Join(parts, ", ")
}

// DisplayMessage はエラーをUIに表示するメッセージに変換する。
// サーバーがメッセージを返していればそれを、無ければfallbackを返す。
func DisplayMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}

	switch {
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrMalformedToken):
		return "Not authenticated"
	case errors.Is(err, ErrNotConfirmed):
		return "Cancelled."
	case errors.Is(err, ErrNotLoaded):
		return "The event could not be loaded, so it cannot be saved"
	}

	return fallback
}
