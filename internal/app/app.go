package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/eventdesk/internal/api"
	"github.com/hitoshi/eventdesk/internal/config"
	"github.com/hitoshi/eventdesk/internal/logger"
	"github.com/hitoshi/eventdesk/internal/metrics"
	"github.com/hitoshi/eventdesk/internal/render"
	"github.com/hitoshi/eventdesk/internal/security"
	"github.com/hitoshi/eventdesk/internal/session"
	"github.com/hitoshi/eventdesk/internal/validation"
)

// ErrReported はコマンドが失敗し、その理由を既に出力済みであることを示す。
// 呼び出し側は終了コード1で終了するだけでよい。
var ErrReported = errors.New("command failed")

// reported はerrをErrReportedで包む。
func reported(err error) error {
	return fmt.Errorf("%w: %w", ErrReported, err)
}

// Streams はCLIの入出力先。
type Streams struct {
	In  io.Reader
	Out io.Writer // 描画結果
	Err io.Writer // ログと問い合わせ文
}

// StdStreams はプロセスの標準入出力を返す。
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// ログはwに出力する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, log, nil
}

// runtime はサブコマンドの実行に必要な依存関係をまとめたもの。
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	streams   Streams
	prompt    *prompter
	session   *session.Session
	client    *api.Client
	registry  *prometheus.Registry
	validator *validation.Validator
	render    *render.Renderer
	now       func() time.Time
}

// newRuntime は設定から依存関係を組み立てる。
func newRuntime(cfg *config.Config, log *slog.Logger, streams Streams) (*runtime, error) {
	// 1. セッション（保存済みトークン）の読み込み
	sess, err := session.Open(session.NewFileStore(cfg.SessionFile))
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. APIクライアント
	client := api.NewClient(cfg.APIBaseURL, sess, api.ClientConfig{
		HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:       log,
		Metrics:      collector,
		Limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	})

	return &runtime{
		cfg:       cfg,
		logger:    log,
		streams:   streams,
		prompt:    newPrompter(streams.In, streams.Err),
		session:   sess,
		client:    client,
		registry:  registry,
		validator: validation.New(),
		render:    render.New(streams.Out, security.NewTextSanitizer(), cfg.Location),
		now:       time.Now,
	}, nil
}

// Run はCLIのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応する処理を実行する。
// argsにはos.Args[1:]を渡す。
func Run(ctx context.Context, streams Streams, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		fmt.Fprint(streams.Err, usage)
		return err
	}

	// help は設定が無くても表示できるようにフル初期化をスキップする
	if cmd == CommandHelp {
		fmt.Fprint(streams.Out, usage)
		return nil
	}

	cfg, log, err := Init(streams.Err)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	rt, err := newRuntime(cfg, log, streams)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer rt.flushMetrics()

	log.Debug("running command",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	rest := args[1:]
	switch cmd {
	case CommandRegister:
		return rt.runRegister(ctx, rest)
	case CommandLogin:
		return rt.runLogin(ctx, rest)
	case CommandLogout:
		return rt.runLogout(rest)
	case CommandWhoAmI:
		return rt.runWhoAmI(rest)
	case CommandList:
		return rt.runList(ctx, rest)
	case CommandShow:
		return rt.runShow(ctx, rest)
	case CommandCreate:
		return rt.runSave(ctx, CommandCreate, rest)
	case CommandEdit:
		return rt.runSave(ctx, CommandEdit, rest)
	case CommandDelete:
		return rt.runDelete(ctx, rest)
	case CommandTags:
		return rt.runTags(ctx, rest)
	case CommandExport:
		return rt.runExport(ctx, rest)
	default:
		return fmt.Errorf("unhandled command %q", cmd)
	}
}

// flushMetrics はMETRICS_TEXTFILEが設定されていればメトリクスを書き出す。
// 書き出しの失敗はコマンドの結果に影響させない。
func (rt *runtime) flushMetrics() {
	if rt.cfg.MetricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(rt.cfg.MetricsTextfile, rt.registry); err != nil {
		rt.logger.Warn("メトリクスの書き出しに失敗しました",
			slog.String("path", rt.cfg.MetricsTextfile),
			slog.String("error", err.Error()),
		)
	}
}
