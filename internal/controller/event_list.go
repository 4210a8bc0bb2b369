package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/permission"
)

// ListView はイベント一覧画面の表示用スナップショット。
type ListView struct {
	State    State
	Events   []model.Event
	Criteria model.FilterCriteria
	Tags     []model.Tag
	Message  string
}

// EventList はイベント一覧画面の状態を管理する。
//
// 取得のたびに単調増加する連番を振り、最新でない連番の応答は破棄する。
// これにより、重なった絞り込みの応答がどの順で届いても、
// 表示される一覧は最後に適用した条件のものになる。
type EventList struct {
	api     EventsAPI
	session SessionReader
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	events   []model.Event
	criteria model.FilterCriteria
	tags     []model.Tag
	message  string
	seq      uint64
	closed   bool
}

// NewEventList はEventListを生成する。
func NewEventList(api EventsAPI, session SessionReader, logger *slog.Logger) *EventList {
	return &EventList{
		api:     api,
		session: session,
		logger:  logger,
	}
}

// Mount は絞り込み用のタグ一覧と、現在の条件でのイベント一覧を読み込む。
// タグの取得失敗はログに残すだけで一覧の取得は続ける。
func (l *EventList) Mount(ctx context.Context) error {
	l.loadTags(ctx)
	return l.fetch(ctx)
}

// ApplyFilter は絞り込み条件を置き換えて一覧を取り直す。
// 同じ条件で2回呼んでも結果をキャッシュせず、2回とも取得する。
func (l *EventList) ApplyFilter(ctx context.Context, criteria model.FilterCriteria) error {
	if _, err := model.ParseTimeClass(string(criteria.TimeClass)); err != nil {
		l.setMessage(model.DisplayMessage(err, "Invalid filter"))
		return err
	}

	l.mu.Lock()
	l.criteria = criteria
	l.mu.Unlock()

	return l.fetch(ctx)
}

// Refresh は現在の条件で一覧を取り直す。作成・更新の後に呼ぶ。
func (l *EventList) Refresh(ctx context.Context) error {
	return l.fetch(ctx)
}

// fetch は現在の条件で一覧を取得し、最新の取得であれば結果を反映する。
func (l *EventList) fetch(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.seq++
	seq := l.seq
	criteria := l.criteria
	l.state = StateLoading
	l.message = ""
	l.mu.Unlock()

	events, err := l.api.ListEvents(ctx, criteria)

	l.mu.Lock()
	defer l.mu.Unlock()

	// 画面を閉じた後や、より新しい取得が始まった後の応答は捨てる
	if l.closed || seq != l.seq {
		l.logger.Debug("古い一覧の応答を破棄しました",
			slog.Uint64("seq", seq),
			slog.Uint64("latest_seq", l.seq),
			slog.Bool("closed", l.closed),
		)
		return nil
	}

	if err != nil {
		l.state = StateError
		l.message = model.DisplayMessage(err, "Failed to load events")
		l.logger.Error("イベント一覧の取得に失敗しました",
			slog.String("tag", criteria.TagName),
			slog.String("time_class", string(criteria.TimeClass)),
			slog.String("error", err.Error()),
		)
		return err
	}

	l.state = StateLoaded
	l.events = append([]model.Event(nil), events...)
	return nil
}

// loadTags は絞り込み用のタグ一覧を読み込む。
func (l *EventList) loadTags(ctx context.Context) {
	tags, err := l.api.ListTags(ctx)
	if err != nil {
		l.logger.Warn("タグ一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.tags = append([]model.Tag(nil), tags...)
	}
}

// RequestDelete は確認を取ってからイベントを削除し、成功したら一覧からそのイベントだけを取り除く。
//
// トークンが無い場合はmodel.ErrAuthRequired、確認が得られない場合はmodel.ErrNotConfirmedを返し、
// どちらもネットワーク呼び出しをしない。削除に失敗した場合は一覧を変更しない。
func (l *EventList) RequestDelete(ctx context.Context, eventID string, confirmer Confirmer) error {
	if _, ok := l.session.Get(); !ok {
		l.setMessage(model.DisplayMessage(model.ErrAuthRequired, ""))
		return model.ErrAuthRequired
	}

	if confirmer == nil || !confirmer.Confirm(l.deletePrompt(eventID)) {
		l.setMessage(model.DisplayMessage(model.ErrNotConfirmed, ""))
		return model.ErrNotConfirmed
	}

	if err := l.api.DeleteEvent(ctx, eventID); err != nil {
		l.logger.Error("イベントの削除に失敗しました",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		l.setMessage(model.DisplayMessage(err, "Failed to delete event"))
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.message = ""
	if l.closed {
		return nil
	}
	kept := make([]model.Event, 0, len(l.events))
	for _, ev := range l.events {
		if ev.ID != eventID {
			kept = append(kept, ev)
		}
	}
	l.events = kept
	return nil
}

// deletePrompt は削除確認の問い合わせ文を返す。
func (l *EventList) deletePrompt(eventID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.ID == eventID {
			return fmt.Sprintf("Delete event %q (%s)?", ev.Title, ev.ID)
		}
	}
	return fmt.Sprintf("Delete event %s?", eventID)
}

// Merge はサーバーから返されたイベントを一覧に反映する。
// 同じIDがあれば置き換え、無ければ末尾に加える。取り直しができない場面で使う。
func (l *EventList) Merge(ev model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for i := range l.events {
		if l.events[i].ID == ev.ID {
			l.events[i] = ev
			return
		}
	}
	l.events = append(l.events, ev)
}

// CanEdit は現在のユーザーに編集・削除の操作を表示するかを返す。
// 表示上の判定にすぎず、実際の権限はサーバーが判定する。
func (l *EventList) CanEdit(ev *model.Event) bool {
	return permission.IsOwner(ev, l.session.UserID())
}

// Close は画面を閉じる。以降に届いた応答は反映しない。
func (l *EventList) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// View は現在の状態のスナップショットを返す。
func (l *EventList) View() ListView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ListView{
		State:    l.state,
		Events:   append([]model.Event(nil), l.events...),
		Criteria: l.criteria,
		Tags:     append([]model.Tag(nil), l.tags...),
		Message:  l.message,
	}
}

func (l *EventList) setMessage(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.message = msg
}
