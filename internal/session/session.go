package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hitoshi/eventdesk/internal/identity"
	"github.com/hitoshi/eventdesk/internal/model"
)

// Session はプロセス全体で共有するセッション状態。
// Openで永続化済みトークンを読み込み（初期化）、Clearで破棄する（ログアウト）。
// グローバル変数ではなく、必要なコントローラやAPIクライアントに明示的に渡す。
// 書き込みはログイン・登録・ログアウト時のみで、読み込みは並行に行える。
type Session struct {
	mu    sync.RWMutex
	store Store
	token string
}

// Open はstoreから保存済みトークンを読み込んでSessionを生成する。
func Open(store Store) (*Session, error) {
	token, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &Session{
		store: store,
		token: strings.TrimSpace(token),
	}, nil
}

// Get は現在のトークンを返す。未認証の場合はokがfalseになる。
func (s *Session) Get() (token string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set はトークンを永続化してから現在のセッションに反映する。
// 永続化に失敗した場合は現在のセッションを変更しない。
func (s *Session) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to store empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(token); err != nil {
		return err
	}
	s.token = token
	return nil
}

// Clear は永続化済みトークンを削除し、未認証状態に戻す。
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(); err != nil {
		return err
	}
	s.token = ""
	return nil
}

// Identity は現在のトークンをデコードして未検証のIDを返す。
// トークンが無い場合はmodel.ErrAuthRequired、デコードできない場合はmodel.ErrMalformedTokenを返す。
func (s *Session) Identity() (*model.DecodedIdentity, error) {
	token, ok := s.Get()
	if !ok {
		return nil, model.ErrAuthRequired
	}
	return identity.Decode(token)
}

// UserID は現在のトークンに含まれるユーザーIDを返す。
// 未認証・デコード不能の場合は空文字列を返す。
func (s *Session) UserID() string {
	token, ok := s.Get()
	if !ok {
		return ""
	}
	return identity.UserID(token)
}
