package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/permission"
)

// DetailView はイベント詳細画面の表示用スナップショット。
type DetailView struct {
	State   State
	Event   *model.Event
	CanEdit bool
	Message string
}

// EventDetail はイベント詳細画面の状態を管理する。
type EventDetail struct {
	api     EventsAPI
	session SessionReader
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	event   *model.Event
	message string
}

// NewEventDetail はEventDetailを生成する。
func NewEventDetail(api EventsAPI, session SessionReader, logger *slog.Logger) *EventDetail {
	return &EventDetail{
		api:     api,
		session: session,
		logger:  logger,
	}
}

// Load はイベントを1件読み込む。
func (d *EventDetail) Load(ctx context.Context, id string) error {
	d.mu.Lock()
	d.state = StateLoading
	d.message = ""
	d.mu.Unlock()

	ev, err := d.api.GetEvent(ctx, id)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.state = StateError
		d.message = model.DisplayMessage(err, "Failed to load event")
		d.logger.Error("イベントの取得に失敗しました",
			slog.String("event_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	d.state = StateLoaded
	d.event = ev
	return nil
}

// View は現在の状態のスナップショットを返す。
func (d *EventDetail) View() DetailView {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := DetailView{State: d.state, Message: d.message}
	if d.event != nil {
		ev := *d.event
		ev.Tags = append([]model.Tag(nil), d.event.Tags...)
		v.Event = &ev
		v.CanEdit = permission.IsOwner(&ev, d.session.UserID())
	}
	return v
}
