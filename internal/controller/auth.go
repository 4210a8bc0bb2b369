package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/validation"
)

// Auth は登録・ログイン・ログアウトを扱う。
// 取得したトークンはセッションに保存し、以降のリクエストで使われる。
type Auth struct {
	api       AuthAPI
	session   SessionWriter
	validator *validation.Validator
	logger    *slog.Logger

	mu      sync.Mutex
	message string
}

// NewAuth はAuthを生成する。
func NewAuth(api AuthAPI, session SessionWriter, v *validation.Validator, logger *slog.Logger) *Auth {
	return &Auth{
		api:       api,
		session:   session,
		validator: v,
		logger:    logger,
	}
}

// Register はアカウントを登録する。
// 応答にトークンが含まれていればセッションに保存し、loggedInをtrueで返す。
func (a *Auth) Register(ctx context.Context, in model.RegisterInput) (loggedIn bool, err error) {
	if err := a.validator.Validate(in); err != nil {
		a.setMessage(model.DisplayMessage(err, "Registration failed"))
		return false, err
	}

	res, err := a.api.Register(ctx, in)
	if err != nil {
		a.logger.Warn("アカウント登録に失敗しました",
			slog.String("username", in.Username),
			slog.String("error", err.Error()),
		)
		a.setMessage(model.DisplayMessage(err, "Registration failed"))
		return false, err
	}

	if res.Token == "" {
		a.setMessage("")
		return false, nil
	}
	if err := a.session.Set(res.Token); err != nil {
		a.setMessage(model.DisplayMessage(err, "Failed to save session"))
		return false, err
	}
	a.setMessage("")
	return true, nil
}

// Login はユーザー名とパスワードでログインし、トークンをセッションに保存する。
func (a *Auth) Login(ctx context.Context, username, password string) error {
	in := model.LoginInput{Username: username, Password: password}
	if err := a.validator.Validate(in); err != nil {
		a.setMessage(model.DisplayMessage(err, "Login failed"))
		return err
	}

	res, err := a.api.Login(ctx, in)
	if err != nil {
		a.logger.Warn("ログインに失敗しました",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		a.setMessage(model.DisplayMessage(err, "Login failed"))
		return err
	}

	if err := a.session.Set(res.Token); err != nil {
		a.setMessage(model.DisplayMessage(err, "Failed to save session"))
		return err
	}
	a.setMessage("")
	return nil
}

// Logout は保存済みトークンを破棄する。
func (a *Auth) Logout() error {
	if err := a.session.Clear(); err != nil {
		a.setMessage(model.DisplayMessage(err, "Failed to clear session"))
		return err
	}
	a.setMessage("")
	return nil
}

// WhoAmI は現在のトークンからデコードしたIDを返す。
// トークンが無い場合はmodel.ErrAuthRequired、デコードできない場合はmodel.ErrMalformedTokenを返す。
func (a *Auth) WhoAmI() (*model.DecodedIdentity, error) {
	return a.session.Identity()
}

// Message は直前の操作の表示用メッセージを返す。成功時は空。
func (a *Auth) Message() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.message
}

func (a *Auth) setMessage(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.message = msg
}
