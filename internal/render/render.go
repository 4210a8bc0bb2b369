// Package render はコントローラの表示用スナップショットを端末向けのテキストに整形する。
//
// サーバー由来の文字列はすべてsecurity.TextSanitizerを通してから出力する。
package render

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hitoshi/eventdesk/internal/controller"
	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/security"
)

// displayLayout は一覧・詳細での日時の表示形式。
const displayLayout = "2006-01-02 15:04 MST"

// Renderer は端末への描画を行う。
type Renderer struct {
	w         io.Writer
	sanitizer security.TextSanitizer
	loc       *time.Location
}

// New はRendererを生成する。locは日時の表示に使うタイムゾーン（nilの場合はtime.Local）。
func New(w io.Writer, sanitizer security.TextSanitizer, loc *time.Location) *Renderer {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{w: w, sanitizer: sanitizer, loc: loc}
}

// EventList は一覧画面を描画する。
// canEditがnilでない場合、編集可能なイベントに印を付ける。
func (r *Renderer) EventList(view controller.ListView, canEdit func(*model.Event) bool) error {
	if view.Message != "" {
		r.line("! %s", r.sanitizer.SanitizeLine(view.Message))
	}
	if view.State != controller.StateLoaded {
		return nil
	}

	if filter := describeCriteria(view.Criteria); filter != "" {
		r.line("Filter: %s", r.sanitizer.SanitizeLine(filter))
	}
	if len(view.Events) == 0 {
		r.line("No events found.")
		return nil
	}

	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE\tLOCATION\tTYPE\tTAGS\t")
	for i := range view.Events {
		ev := &view.Events[i]
		id := r.sanitizer.SanitizeLine(ev.ID)
		if canEdit != nil && canEdit(ev) {
			id += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			id,
			r.formatTime(ev.DateTime),
			r.sanitizer.SanitizeLine(ev.Title),
			r.sanitizer.SanitizeLine(ev.Location),
			r.sanitizer.SanitizeLine(string(ev.Type)),
			r.tagNames(ev.Tags),
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to render event list: %w", err)
	}
	if canEdit != nil {
		r.line("(* = yours: edit or delete available)")
	}
	return nil
}

// EventDetail は詳細画面を描画する。
func (r *Renderer) EventDetail(view controller.DetailView) error {
	if view.Message != "" {
		r.line("! %s", r.sanitizer.SanitizeLine(view.Message))
	}
	if view.Event == nil {
		return nil
	}
	ev := view.Event

	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Title:\t%s\n", r.sanitizer.SanitizeLine(ev.Title))
	fmt.Fprintf(tw, "ID:\t%s\n", r.sanitizer.SanitizeLine(ev.ID))
	fmt.Fprintf(tw, "Date:\t%s\n", r.formatTime(ev.DateTime))
	fmt.Fprintf(tw, "Location:\t%s\n", r.sanitizer.SanitizeLine(ev.Location))
	fmt.Fprintf(tw, "Type:\t%s\n", r.sanitizer.SanitizeLine(string(ev.Type)))
	fmt.Fprintf(tw, "Tags:\t%s\n", r.tagNames(ev.Tags))
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to render event: %w", err)
	}

	if desc := strings.TrimSpace(r.sanitizer.Sanitize(ev.Description)); desc != "" {
		r.line("")
		for _, l := range strings.Split(desc, "\n") {
			r.line("  %s", l)
		}
	}
	if view.CanEdit {
		r.line("")
		r.line("You own this event: `eventdesk edit %[1]s` or `eventdesk delete %[1]s`.", r.sanitizer.SanitizeLine(ev.ID))
	}
	return nil
}

// Tags はタグ一覧を描画する。
func (r *Renderer) Tags(tags []model.Tag) error {
	if len(tags) == 0 {
		r.line("No tags found.")
		return nil
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\t")
	for _, t := range tags {
		fmt.Fprintf(tw, "%s\t%s\t\n", r.sanitizer.SanitizeLine(t.ID), r.sanitizer.SanitizeLine(t.Name))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to render tags: %w", err)
	}
	return nil
}

// FormResult はフォーム送信後の状態を描画する。
// フィールドエラーはフィールド名順に並べる。
func (r *Renderer) FormResult(view controller.FormView, saved *model.Event) {
	if saved != nil {
		verb := "Created"
		if view.EventID != "" {
			verb = "Updated"
		}
		r.line("%s event %s (%s).", verb, r.sanitizer.SanitizeLine(saved.ID), r.sanitizer.SanitizeLine(saved.Title))
		return
	}
	if view.Message != "" {
		r.line("! %s", r.sanitizer.SanitizeLine(view.Message))
	}
	keys := make([]string, 0, len(view.FieldErrors))
	for k := range view.FieldErrors {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		r.line("  - %s: %s", k, view.FieldErrors[k])
	}
}

// Identity はwhoamiの結果を描画する。
func (r *Renderer) Identity(id *model.DecodedIdentity, now time.Time) {
	r.line("User ID: %s", r.sanitizer.SanitizeLine(id.UserID))
	if !id.IssuedAt.IsZero() {
		r.line("Issued:  %s", r.formatTime(id.IssuedAt))
	}
	if !id.ExpiresAt.IsZero() {
		suffix := ""
		if id.Expired(now) {
			suffix = " (expired: run `eventdesk login`)"
		}
		r.line("Expires: %s%s", r.formatTime(id.ExpiresAt), suffix)
	}
}

// Message は1行のメッセージを描画する。
func (r *Renderer) Message(format string, args ...any) {
	r.line("%s", r.sanitizer.SanitizeLine(fmt.Sprintf(format, args...)))
}

func (r *Renderer) line(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *Renderer) formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(r.loc).Format(displayLayout)
}

func (r *Renderer) tagNames(tags []model.Tag) string {
	if len(tags) == 0 {
		return "-"
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, r.sanitizer.SanitizeLine(t.Name))
	}
	return strings.Join(names, ",")
}

// describeCriteria は絞り込み条件を表示用の文字列にする。未設定の場合は空文字列。
func describeCriteria(c model.FilterCriteria) string {
	var parts []string
	if c.TagName != "" {
		parts = append(parts, "tag="+c.TagName)
	}
	if c.TimeClass != model.TimeClassAny {
		parts = append(parts, "time="+string(c.TimeClass))
	}
	return strings.Join(parts, " ")
}
