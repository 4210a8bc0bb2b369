package controller

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/validation"
)

// FormFields はイベント作成・編集フォームの入力値。
// 日時はLocalLayoutのローカル時刻文字列で保持する。
type FormFields struct {
	Title       string          `json:"title" validate:"notblank,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	DateTime    string          `json:"date_time" validate:"required,datetime=2006-01-02T15:04"`
	Location    string          `json:"location" validate:"notblank,max=200"`
	Type        model.EventType `json:"type" validate:"oneof=public private"`
	TagIDs      []string        `json:"tag_ids" validate:"dive,required"`
}

// clone はスライスを共有しないコピーを返す。
func (f FormFields) clone() FormFields {
	f.TagIDs = append([]string{}, f.TagIDs...)
	return f
}

// emptyFields は新規作成時のフォームの初期値を返す。
func emptyFields() FormFields {
	return FormFields{Type: model.EventTypePublic, TagIDs: []string{}}
}

// FormView はフォーム画面の表示用スナップショット。
type FormView struct {
	State       State
	EventID     string // 編集中のイベントID。新規作成時は空
	Fields      FormFields
	Tags        []model.Tag
	Message     string
	FieldErrors map[string]string
}

// EventForm はイベント作成・編集フォームの状態を管理する。
// 送信に失敗しても入力値は保持し、修正して再送信できる。
type EventForm struct {
	api       EventsAPI
	session   SessionReader
	validator *validation.Validator
	loc       *time.Location
	logger    *slog.Logger
	onSaved   func(ctx context.Context, ev *model.Event)

	mu          sync.Mutex
	state       State
	eventID     string
	fields      FormFields
	tags        []model.Tag
	message     string
	fieldErrors map[string]string
}

// NewEventForm はEventFormを生成する。
// locはフォームで日時を表示・解釈するタイムゾーン。
func NewEventForm(api EventsAPI, session SessionReader, v *validation.Validator, loc *time.Location, logger *slog.Logger) *EventForm {
	return &EventForm{
		api:       api,
		session:   session,
		validator: v,
		loc:       location(loc),
		logger:    logger,
		fields:    emptyFields(),
	}
}

// OnSaved は保存成功時に呼ぶ関数を設定する。
// 一覧の取り直し（EventList.Refresh）をつなぐのに使う。
func (f *EventForm) OnSaved(fn func(ctx context.Context, ev *model.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSaved = fn
}

// Load はタグの選択肢を読み込み、idがあればそのイベントでフォームを埋める。
// idが空の場合は新規作成用の空のフォームにする（公開、タグ無し）。
func (f *EventForm) Load(ctx context.Context, id string) error {
	tags, err := f.api.ListTags(ctx)
	if err != nil {
		f.logger.Warn("タグ一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	f.mu.Lock()
	if err == nil {
		f.tags = append([]model.Tag(nil), tags...)
	}
	f.message = ""
	f.fieldErrors = nil
	if id == "" {
		f.eventID = ""
		f.fields = emptyFields()
		f.state = StateLoaded
		f.mu.Unlock()
		return nil
	}
	// 読み込みに失敗しても編集のつもりだったことを覚えておき、新規作成に化けさせない
	f.eventID = id
	f.state = StateLoading
	f.mu.Unlock()

	ev, err := f.api.GetEvent(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = StateError
		f.message = model.DisplayMessage(err, "Failed to load event")
		f.logger.Error("イベントの取得に失敗しました",
			slog.String("event_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}

	eventType := ev.Type
	if eventType == "" {
		eventType = model.EventTypePublic
	}
	f.eventID = ev.ID
	if f.eventID == "" {
		f.eventID = id
	}
	f.fields = FormFields{
		Title:       ev.Title,
		Description: ev.Description,
		DateTime:    FormatLocal(ev.DateTime, f.loc),
		Location:    ev.Location,
		Type:        eventType,
		TagIDs:      ev.TagIDs(),
	}
	f.state = StateLoaded
	return nil
}

// Editing は既存イベントの編集中かを返す。
func (f *EventForm) Editing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventID != ""
}

// Fields は現在の入力値を返す。
func (f *EventForm) Fields() FormFields {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields.clone()
}

// Update は入力値を変更する。
func (f *EventForm) Update(fn func(fields *FormFields)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := f.fields.clone()
	fn(&fields)
	f.fields = fields
}

// ToggleTag はタグの選択を切り替える。
func (f *EventForm) ToggleTag(tagID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := slices.Index(f.fields.TagIDs, tagID); i >= 0 {
		f.fields.TagIDs = slices.Delete(slices.Clone(f.fields.TagIDs), i, i+1)
		return
	}
	f.fields.TagIDs = append(slices.Clone(f.fields.TagIDs), tagID)
}

// Submit は入力値を検証して保存する。編集中なら更新、そうでなければ作成する。
//
// 編集対象の読み込みが終わっていない、または失敗した場合はmodel.ErrNotLoadedを返す。
// トークンが無い場合はネットワーク呼び出しをせずmodel.ErrAuthRequiredを返す。
// トークンをデコードできない、またはユーザーIDが含まれない場合も未認証として扱う。
// 失敗時は入力値を保持したまま表示用メッセージを設定する。
func (f *EventForm) Submit(ctx context.Context) (*model.Event, error) {
	f.mu.Lock()
	state := f.state
	f.mu.Unlock()
	if state == StateLoading || state == StateError {
		f.fail(model.ErrNotLoaded, "", nil)
		return nil, model.ErrNotLoaded
	}

	if _, ok := f.session.Get(); !ok {
		f.fail(model.ErrAuthRequired, "", nil)
		return nil, model.ErrAuthRequired
	}
	identity, err := f.session.Identity()
	if err != nil || identity.UserID == "" {
		if err != nil {
			f.logger.Warn("トークンをデコードできません",
				slog.String("error", err.Error()),
			)
		}
		f.fail(model.ErrAuthRequired, "", nil)
		return nil, model.ErrAuthRequired
	}

	f.mu.Lock()
	fields := f.fields.clone()
	eventID := f.eventID
	f.mu.Unlock()

	if err := f.validator.Validate(fields); err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			f.fail(err, "", vErr.Fields)
		} else {
			f.fail(err, "Invalid input", nil)
		}
		return nil, err
	}

	when, err := ParseLocal(fields.DateTime, f.loc)
	if err != nil {
		vErr := &model.ValidationError{Fields: map[string]string{"date_time": "is invalid"}}
		f.fail(vErr, "", vErr.Fields)
		return nil, vErr
	}

	input := model.EventInput{
		Title:       fields.Title,
		Description: fields.Description,
		DateTime:    when,
		Location:    fields.Location,
		Type:        fields.Type,
		TagIDs:      fields.TagIDs,
		UserID:      identity.UserID,
	}

	var saved *model.Event
	fallback := "Failed to create event"
	if eventID != "" {
		fallback = "Failed to update event"
		saved, err = f.api.UpdateEvent(ctx, eventID, input)
	} else {
		saved, err = f.api.CreateEvent(ctx, input)
	}
	if err != nil {
		f.logger.Error("イベントの保存に失敗しました",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		f.fail(err, fallback, nil)
		return nil, err
	}

	f.mu.Lock()
	f.message = ""
	f.fieldErrors = nil
	onSaved := f.onSaved
	f.mu.Unlock()

	if onSaved != nil {
		onSaved(ctx, saved)
	}
	return saved, nil
}

// fail は失敗を表示用メッセージとして記録する。入力値には触れない。
func (f *EventForm) fail(err error, fallback string, fieldErrors map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = model.DisplayMessage(err, fallback)
	f.fieldErrors = fieldErrors
}

// View は現在の状態のスナップショットを返す。
func (f *EventForm) View() FormView {
	f.mu.Lock()
	defer f.mu.Unlock()

	return FormView{
		State:       f.state,
		EventID:     f.eventID,
		Fields:      f.fields.clone(),
		Tags:        append([]model.Tag(nil), f.tags...),
		Message:     f.message,
		FieldErrors: maps.Clone(f.fieldErrors),
	}
}
