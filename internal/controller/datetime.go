package controller

import (
	"fmt"
	"time"
)

// LocalLayout はフォームで日時を入力・表示する書式（分単位）。
const LocalLayout = "2006-01-02T15:04"

// FormatLocal は時刻をlocのローカル時刻としてLocalLayoutで整形する。
func FormatLocal(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(location(loc)).Format(LocalLayout)
}

// ParseLocal はLocalLayoutの文字列をlocのローカル時刻として解釈する。
// 分未満は切り捨てられるので、ParseLocal(FormatLocal(x)) は分単位でxと一致する。
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(LocalLayout, s, location(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse local date-time %q: %w", s, err)
	}
	return t, nil
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
