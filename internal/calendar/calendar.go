// Package calendar はイベント一覧をiCalendar（RFC 5545）形式で書き出す。
package calendar

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/security"
)

// productID はPRODIDプロパティの値。
const productID = "-//eventdesk//Events Catalogue Export//EN"

// uidDomain はイベントIDをグローバルに一意なUIDにするための接尾辞。
const uidDomain = "eventdesk"

// defaultDuration はイベントに終了日時が無いため、DTENDに使う既定の長さ。
const defaultDuration = time.Hour

// Options はエクスポートの設定。
type Options struct {
	// Name はカレンダー名（X-WR-CALNAME）。空の場合は設定しない。
	Name string
	// Duration は各イベントの長さ。0以下の場合は1時間。
	Duration time.Duration
	// Now はDTSTAMPに使う現在時刻。nilの場合はtime.Now。
	Now func() time.Time
	// Sanitizer はタイトル等の無害化に使う。nilの場合はsecurity.NewTextSanitizer。
	Sanitizer security.TextSanitizer
}

// Result はエクスポート結果の件数。
type Result struct {
	Exported int
	// Skipped は開催日時が無いためVEVENTにできなかったイベントの数。
	Skipped int
}

// Build はeventsからカレンダーを組み立てる。順序はevents（サーバーの返却順）のまま。
func Build(events []model.Event, opts Options) (*ics.Calendar, Result) {
	opts = withDefaults(opts)
	stamp := opts.Now()

	cal := ics.NewCalendarFor(uidDomain)
	cal.SetProductId(productID)
	cal.SetMethod(ics.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Sanitizer.SanitizeLine(opts.Name))
	}

	var res Result
	for i := range events {
		ev := &events[i]
		if ev.ID == "" || ev.DateTime.IsZero() {
			res.Skipped++
			continue
		}

		vev := cal.AddEvent(fmt.Sprintf("%s@%s", ev.ID, uidDomain))
		vev.SetDtStampTime(stamp)
		vev.SetStartAt(ev.DateTime)
		vev.SetEndAt(ev.DateTime.Add(opts.Duration))
		vev.SetSummary(opts.Sanitizer.SanitizeLine(ev.Title))
		if desc := opts.Sanitizer.Sanitize(ev.Description); desc != "" {
			vev.SetDescription(desc)
		}
		if loc := opts.Sanitizer.SanitizeLine(ev.Location); loc != "" {
			vev.SetLocation(loc)
		}
		vev.SetClass(classification(ev.Type))
		for _, tag := range ev.Tags {
			if name := opts.Sanitizer.SanitizeLine(tag.Name); name != "" {
				vev.AddCategory(name)
			}
		}
		res.Exported++
	}

	return cal, res
}

// Export はeventsをiCalendarとしてwに書き出す。
func Export(w io.Writer, events []model.Event, opts Options) (Result, error) {
	cal, res := Build(events, opts)
	if err := cal.SerializeTo(w); err != nil {
		return Result{}, fmt.Errorf("failed to write calendar: %w", err)
	}
	return res, nil
}

func classification(t model.EventType) ics.Classification {
	if t == model.EventTypePrivate {
		return ics.ClassificationPrivate
	}
	return ics.ClassificationPublic
}

func withDefaults(opts Options) Options {
	if opts.Duration <= 0 {
		opts.Duration = defaultDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = security.NewTextSanitizer()
	}
	return opts
}
