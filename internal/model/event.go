// Package model はドメインモデルを定義する。
package model

import "time"

// EventType はイベントの公開範囲を表す。
type EventType string

const (
	// EventTypePublic は誰でも閲覧できるイベント。
	EventTypePublic EventType = "public"
	// EventTypePrivate は作成者のみが閲覧できるイベント（可視性はサーバーが判定する）。
	EventTypePrivate EventType = "private"
)

// Tag はイベントに付与する再利用可能なラベルを表す。
// サーバーから取得する参照データで、IDで一意に識別される。
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event はサーバーが所有するイベントを表す。
// クライアントは表示中の一覧のみを保持し、ローカルには永続化しない。
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time"`
	Location    string    `json:"location"`
	Type        EventType `json:"type"`
	UserID      string    `json:"user_id"` // 作成者（オーナー）
	Tags        []Tag     `json:"tags"`
}

// TagIDs はイベントに付与されたタグのIDをタグの順序のまま返す。
func (e *Event) TagIDs() []string {
	ids := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		ids = append(ids, t.ID)
	}
	return ids
}

// EventInput はイベント作成・更新APIのリクエストボディ。
// user_idはトークンからデコードした値をクライアントが付与する。
type EventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time"`
	Location    string    `json:"location"`
	Type        EventType `json:"type"`
	TagIDs      []string  `json:"tag_ids"`
	UserID      string    `json:"user_id"`
}
