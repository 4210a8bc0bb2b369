package model

import "fmt"

// TimeClass はイベントを現在時刻基準で過去/今後に分類する時間区分を表す。
type TimeClass string

const (
	// TimeClassAny は時間区分で絞り込まない。
	TimeClassAny TimeClass = ""
	// TimeClassPast は開催日時が過ぎたイベント。
	TimeClassPast TimeClass = "past"
	// TimeClassUpcoming はこれから開催されるイベント。
	TimeClassUpcoming TimeClass = "upcoming"
)

// validTimeClasses は有効な時間区分のセット。
var validTimeClasses = map[TimeClass]bool{
	TimeClassAny:      true,
	TimeClassPast:     true,
	TimeClassUpcoming: true,
}

// ParseTimeClass は文字列を時間区分に変換する。
// UI・通信の両方で "past" / "upcoming" の語彙に統一している。
func ParseTimeClass(s string) (TimeClass, error) {
	tc := TimeClass(s)
	if !validTimeClasses[tc] {
		return "", NewInvalidFilterError(fmt.Sprintf("time class %q (use past or upcoming)", s))
	}
	return tc, nil
}

// FilterCriteria はイベント一覧の絞り込み条件。
// 画面上の一時的な状態で、永続化しない。
type FilterCriteria struct {
	TagName   string
	TimeClass TimeClass
}

// IsZero は絞り込み条件が未設定かを返す。
func (c FilterCriteria) IsZero() bool {
	return c.TagName == "" && c.TimeClass == TimeClassAny
}
