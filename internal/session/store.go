// Package session はセッショントークンの永続化と、プロセス全体で共有するセッション状態を提供する。
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store はセッショントークンの永続化インターフェース。
// 保存するのは固定キー1つ（token）のみ。
type Store interface {
	// Load は保存済みトークンを返す。未保存の場合は空文字列とnilを返す。
	Load() (string, error)
	// Save はトークンを保存する。
	Save(token string) error
	// Delete は保存済みトークンを削除する。未保存でもエラーにしない。
	Delete() error
}

// sessionFile はセッションファイルのYAML表現。
type sessionFile struct {
	Token string `yaml:"token"`
}

// FileStore はYAMLファイルにトークンを保存するStore実装。
// ファイルは0600、親ディレクトリは0700で作成する。
type FileStore struct {
	path string
}

// NewFileStore はFileStoreを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path はセッションファイルのパスを返す。
func (s *FileStore) Path() string {
	return s.path
}

// Load はセッションファイルからトークンを読み込む。
func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session file: %w", err)
	}

	var f sessionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}
	return f.Token, nil
}

// Save はトークンをセッションファイルに書き込む。
// 一時ファイルに書き込んでからリネームすることで、途中で失敗しても既存ファイルを壊さない。
func (s *FileStore) Save(token string) error {
	if s.path == "" {
		return errors.New("session file path is empty")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	data, err := yaml.Marshal(sessionFile{Token: token})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".eventdesk-session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Delete はセッションファイルを削除する。
func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// MemoryStore はメモリ上にトークンを保持するStore実装。テストや一時利用向け。
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore はtokenを保存済みの状態でMemoryStoreを生成する。
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

// Load は保持しているトークンを返す。
func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Save はトークンを保持する。
func (s *MemoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Delete は保持しているトークンを破棄する。
func (s *MemoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
