// Package api はイベントAPIのクライアントを提供する。
// 認証・イベント・タグの各エンドポイントを呼び出し、トークンがあればBearerとして付与する。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/eventdesk/internal/metrics"
	"github.com/hitoshi/eventdesk/internal/model"
)

const (
	// userAgent はリクエストに付与するUser-Agent。
	userAgent = "eventdesk/1.0"
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 4 << 20
)

// TokenSource は現在のセッショントークンを提供するインターフェース。
// session.Sessionが実装する。
type TokenSource interface {
	Get() (token string, ok bool)
}

// ClientConfig はClientの依存と再送・レート制限の設定を保持する。
type ClientConfig struct {
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Metrics      metrics.MetricsCollector
	Limiter      *rate.Limiter // nilの場合はレート制限しない
	MaxRetries   int           // GETの再送回数
	RetryBackoff time.Duration // 再送待ちの初期値
}

// DefaultClientConfig はデフォルトの設定を返す。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		Logger:       slog.Default(),
		Metrics:      metrics.NopCollector{},
		Limiter:      rate.NewLimiter(rate.Limit(10), 5),
		MaxRetries:   2,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Client はイベントAPIのクライアント。
type Client struct {
	baseURL      string
	tokens       TokenSource
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      metrics.MetricsCollector
	limiter      *rate.Limiter
	maxRetries   int
	retryBackoff time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// cfgの未設定項目はデフォルト値で補う。
func NewClient(baseURL string, tokens TokenSource, cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = def.HTTPClient
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = def.Metrics
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokens:       tokens,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		limiter:      cfg.Limiter,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
	}
}

// request は1回の論理的なAPI呼び出しを表す。
type request struct {
	method       string
	route        string // メトリクス・ログ用のルートパターン
	path         string
	query        url.Values
	body         any
	authRequired bool
}

// Register はアカウントを登録する。
// サーバーがトークンを返さない場合、AuthResult.Tokenは空になる。
func (c *Client) Register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error) {
	var res model.AuthResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/register",
		path:   "/auth/register",
		body:   in,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Login はユーザー名とパスワードでトークンを取得する。
func (c *Client) Login(ctx context.Context, in model.LoginInput) (*model.AuthResult, error) {
	var res model.AuthResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/login",
		path:   "/auth/login",
		body:   in,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, errors.New("login response did not include a token")
	}
	return &res, nil
}

// EventsQuery は絞り込み条件からイベント一覧のクエリパラメータを組み立てる。
// 未設定の条件はパラメータごと省略し、空文字列の値は送らない。
func EventsQuery(criteria model.FilterCriteria) url.Values {
	q := url.Values{}
	if name := strings.TrimSpace(criteria.TagName); name != "" {
		q.Set("tags", name)
	}
	if criteria.TimeClass != model.TimeClassAny {
		q.Set("type", string(criteria.TimeClass))
	}
	return q
}

// ListEvents はイベント一覧を取得する。順序はサーバーが返した順のまま。
func (c *Client) ListEvents(ctx context.Context, criteria model.FilterCriteria) ([]model.Event, error) {
	if _, err := model.ParseTimeClass(string(criteria.TimeClass)); err != nil {
		return nil, err
	}

	var events []model.Event
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/events",
		path:   "/events",
		query:  EventsQuery(criteria),
	}, &events)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// GetEvent はイベントを1件取得する。
func (c *Client) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/events/{id}",
		path:   eventPath(id),
	}, &ev)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// CreateEvent はイベントを作成し、作成されたイベントを返す。
func (c *Client) CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	var ev model.Event
	err := c.do(ctx, request{
		method:       http.MethodPost,
		route:        "/events",
		path:         "/events",
		body:         in,
		authRequired: true,
	}, &ev)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// UpdateEvent はイベントを更新し、更新後のイベントを返す。
func (c *Client) UpdateEvent(ctx context.Context, id string, in model.EventInput) (*model.Event, error) {
	var ev model.Event
	err := c.do(ctx, request{
		method:       http.MethodPut,
		route:        "/events/{id}",
		path:         eventPath(id),
		body:         in,
		authRequired: true,
	}, &ev)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// DeleteEvent はイベントを削除する。
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method:       http.MethodDelete,
		route:        "/events/{id}",
		path:         eventPath(id),
		authRequired: true,
	}, nil)
}

// ListTags はタグ一覧を取得する。
func (c *Client) ListTags(ctx context.Context) ([]model.Tag, error) {
	var tags []model.Tag
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/tags",
		path:   "/tags",
	}, &tags)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	return tags, nil
}

func eventPath(id string) string {
	return "/events/" + url.PathEscape(id)
}

// do はリクエストを送信し、成功時はレスポンスをoutにデコードする。
// GETは429/5xxと通信エラーの場合に限り、指数バックオフで再送する。
func (c *Client) do(ctx context.Context, req request, out any) error {
	token, hasToken := "", false
	if c.tokens != nil {
		token, hasToken = c.tokens.Get()
	}
	// 認証必須のエンドポイントはトークンが無ければ送信しない
	if req.authRequired && !hasToken {
		return model.ErrAuthRequired
	}

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.maxRetries
	}
	requestID := uuid.New().String()

	for attempt := 0; ; attempt++ {
		last := attempt+1 >= attempts

		resp, err := c.send(ctx, req, payload, token, requestID)
		if err != nil {
			c.metrics.RecordNetworkError(req.method, req.route)
			c.logger.Warn("イベントAPIの呼び出しに失敗しました",
				slog.String("method", req.method),
				slog.String("route", req.route),
				slog.String("request_id", requestID),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			if last || ctx.Err() != nil {
				return model.NewNetworkError(err)
			}
			if err := c.wait(ctx, req.route, CalculateBackoff(c.retryBackoff, attempt)); err != nil {
				return model.NewNetworkError(err)
			}
			continue
		}

		switch ClassifyStatus(resp.status) {
		case OutcomeOK:
			return decodeBody(resp.body, out)
		case OutcomeRetry:
			if last {
				break
			}
			delay, ok := retryAfter(resp.header)
			if !ok {
				delay = CalculateBackoff(c.retryBackoff, attempt)
			}
			c.logger.Info("イベントAPIを再送します",
				slog.String("method", req.method),
				slog.String("route", req.route),
				slog.String("request_id", requestID),
				slog.Int("http_status", resp.status),
				slog.Duration("delay", delay),
			)
			if err := c.wait(ctx, req.route, delay); err != nil {
				return model.NewNetworkError(err)
			}
			continue
		}

		apiErr := decodeError(resp.status, resp.body)
		c.logger.Warn("イベントAPIがエラーステータスを返しました",
			slog.String("method", req.method),
			slog.String("route", req.route),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.status),
			slog.String("message", apiErr.Message),
		)
		return apiErr
	}
}

// response は読み取り済みのHTTPレスポンス。
type response struct {
	status int
	header http.Header
	body   []byte
}

// send はHTTPリクエストを1回送信する。
func (c *Client) send(ctx context.Context, req request, payload []byte, token, requestID string) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.metrics.RecordRequest(req.method, req.route, resp.StatusCode, time.Since(start))

	return &response{
		status: resp.StatusCode,
		header: resp.Header,
		body:   data,
	}, nil
}

// wait は再送前にdelayだけ待つ。コンテキストが終了した場合はエラーを返す。
func (c *Client) wait(ctx context.Context, route string, delay time.Duration) error {
	c.metrics.RecordRetry(route)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeBody は成功レスポンスのJSONをoutにデコードする。
// 本文が空の場合（204など）は何もしない。
func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// errorBody はエラーレスポンスのJSON表現。
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// decodeError はエラーレスポンスをAPIErrorに変換する。
// 本文がJSONでない場合はメッセージ無しとして扱い、表示側のフォールバックに任せる。
func decodeError(status int, body []byte) *model.APIError {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		eb = errorBody{}
	}
	return model.NewStatusError(status, errorCodeForStatus(status), strings.TrimSpace(eb.Message))
}
