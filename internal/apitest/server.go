// Package apitest はイベントAPIのインメモリ実装を提供する。
// クライアント側のテストで実サーバーの代わりに起動する。
// 所有者チェックと非公開イベントの可視性はクライアントとは独立にここで判定する。
package apitest

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/eventdesk/internal/middleware"
	"github.com/hitoshi/eventdesk/internal/model"
)

// Options はテスト用サーバーの設定。
type Options struct {
	Logger    *slog.Logger                  // nilの場合はログを捨てる
	RateLimit *middleware.RateLimiterConfig // nilの場合はレート制限しない
	Now       func() time.Time              // 過去/今後の判定とトークン発行に使う時刻
	TokenTTL  time.Duration                 // 発行するトークンの有効期間
}

// user は登録済みユーザー。
type user struct {
	ID           string
	FirstName    string
	LastName     string
	Username     string
	PasswordHash []byte
}

// injectedFailure は次のリクエストに返す失敗レスポンス。
type injectedFailure struct {
	status  int
	message string
}

// Server はイベントAPIのテスト用実装。
type Server struct {
	URL string

	srv     *httptest.Server
	logger  *slog.Logger
	secret  []byte
	now     func() time.Time
	ttl     time.Duration
	limiter *middleware.RateLimiter

	mu       sync.Mutex
	users    map[string]*user // ユーザー名で引く
	events   []model.Event    // 作成順
	tags     []model.Tag
	counts   map[string]int // "GET /events/{id}" 形式のキー
	failures map[string][]injectedFailure
	listHook func(r *http.Request)
}

// NewServer はデフォルト設定でサーバーを起動する。テスト終了時に停止する。
func NewServer(t testing.TB) *Server {
	return NewServerWithOptions(t, Options{})
}

// NewServerWithOptions は指定した設定でサーバーを起動する。テスト終了時に停止する。
func NewServerWithOptions(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}

	s := &Server{
		logger:   opts.Logger,
		secret:   []byte(uuid.New().String()),
		now:      opts.Now,
		ttl:      opts.TokenTTL,
		users:    make(map[string]*user),
		counts:   make(map[string]int),
		failures: make(map[string][]injectedFailure),
	}
	if opts.RateLimit != nil {
		s.limiter = middleware.NewRateLimiter(*opts.RateLimit)
	}

	s.srv = httptest.NewServer(s.routes())
	s.URL = s.srv.URL

	t.Cleanup(s.Close)
	return s
}

// Close はサーバーを停止する。
func (s *Server) Close() {
	s.srv.Close()
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// routes はルーティングとミドルウェアチェーンを構成する。
//
// ミドルウェアスタックの実行順序:
//
//	count → Recovery → BearerAuth → Logging → RateLimit
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.countAndInject)
	r.Use(middleware.NewRecoveryMiddleware(s.logger))
	r.Use(middleware.NewBearerAuthMiddleware(s))
	r.Use(middleware.NewLoggingMiddleware(s.logger))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
	})

	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.With(middleware.RequireUser).Post("/", s.handleCreateEvent)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetEvent)
			r.With(middleware.RequireUser).Put("/", s.handleUpdateEvent)
			r.With(middleware.RequireUser).Delete("/", s.handleDeleteEvent)
		})
	})

	r.Get("/tags", s.handleListTags)

	return r
}

// routeKey はリクエストを "METHOD /route" 形式のキーに正規化する。
func routeKey(method, path string) string {
	path = "/" + strings.Trim(path, "/")
	if rest, ok := strings.CutPrefix(path, "/events/"); ok && rest != "" {
		path = "/events/{id}"
	}
	return method + " " + path
}

// countAndInject はリクエスト数を記録し、登録済みの失敗レスポンスがあればそれを返す。
func (s *Server) countAndInject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r.Method, r.URL.Path)

		s.mu.Lock()
		s.counts[key]++
		var failure *injectedFailure
		if queue := s.failures[key]; len(queue) > 0 {
			failure = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if failure != nil {
			if failure.status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "0")
			}
			middleware.WriteError(w, failure.status, "", failure.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddUser はユーザーを登録し、ユーザーIDを返す。
func (s *Server) AddUser(username, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := &user{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
	}
	s.users[username] = u
	return u.ID
}

// AddTag はタグを追加する。
func (s *Server) AddTag(name string) model.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag := model.Tag{ID: uuid.New().String(), Name: name}
	s.tags = append(s.tags, tag)
	return tag
}

// AddEvent はイベントを末尾に追加する。IDが空の場合は採番する。
func (s *Server) AddEvent(ev model.Event) model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Type == "" {
		ev.Type = model.EventTypePublic
	}
	if ev.Tags == nil {
		ev.Tags = []model.Tag{}
	}
	s.events = append(s.events, ev)
	return ev
}

// Events は保持しているイベントを作成順に返す。
func (s *Server) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

// Event はIDでイベントを返す。
func (s *Server) Event(id string) (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.events[i], true
	}
	return model.Event{}, false
}

// RequestCount は "GET", "/events/{id}" のようなメソッドとルートに届いたリクエスト数を返す。
func (s *Server) RequestCount(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+route]
}

// TotalRequests は届いたリクエストの総数を返す。
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}

// FailNext は指定ルートの次のtimes回のリクエストに失敗レスポンスを返すよう登録する。
// messageが空の場合はmessageを含まない本文を返す。
func (s *Server) FailNext(method, route string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + route
	for i := 0; i < times; i++ {
		s.failures[key] = append(s.failures[key], injectedFailure{status: status, message: message})
	}
}

// OnList はGET /eventsの応答前に呼ばれるフックを設定する。
// フックはロックの外で呼ばれるので、ブロックして応答順を制御できる。
func (s *Server) OnList(hook func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listHook = hook
}

// indexOf はイベントの添字を返す。呼び出し側でロックを保持すること。
func (s *Server) indexOf(id string) int {
	for i := range s.events {
		if s.events[i].ID == id {
			return i
		}
	}
	return -1
}
