package controller

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hitoshi/eventdesk/internal/api"
	"github.com/hitoshi/eventdesk/internal/apitest"
	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fixture はテスト用サーバーと、それにつないだクライアント・セッションの組。
type fixture struct {
	srv     *apitest.Server
	client  *api.Client
	session *session.Session
}

// newFixture はtokenを保存済みのセッションでfixtureを作る。tokenが空なら未認証。
// 失敗応答の件数を数えやすいよう、クライアントは再送しない。
func newFixture(t *testing.T, srv *apitest.Server, token string) *fixture {
	t.Helper()

	sess, err := session.Open(session.NewMemoryStore(token))
	require.NoError(t, err)

	client := api.NewClient(srv.URL, sess, api.ClientConfig{
		Logger:       discardLogger(),
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
	})

	return &fixture{srv: srv, client: client, session: sess}
}

// ids はイベントのIDを順に返す。
func ids(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}
