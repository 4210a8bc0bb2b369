package app

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hitoshi/eventdesk/internal/calendar"
	"github.com/hitoshi/eventdesk/internal/controller"
	"github.com/hitoshi/eventdesk/internal/model"
)

// errUsage は引数の誤りを示す。使い方は出力済み。
var errUsage = errors.New("invalid arguments")

// stringList は繰り返し指定できる文字列フラグ。
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// newFlagSet はサブコマンド用のFlagSetを生成する。エラーと使い方は標準エラーに出す。
func (rt *runtime) newFlagSet(cmd Command) *flag.FlagSet {
	fs := flag.NewFlagSet("eventdesk "+string(cmd), flag.ContinueOnError)
	fs.SetOutput(rt.streams.Err)
	return fs
}

// parseFlags はargsを解析する。-hの場合はhelpがtrueになり、呼び出し側は何もせず終了する。
func parseFlags(fs *flag.FlagSet, args []string) (help bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, errUsage
	}
	return false, nil
}

// splitID は先頭の位置引数をIDとして取り出す。
// flagパッケージは最初の位置引数で解析をやめるので、`edit ID -title x` の形を受け付けるために使う。
func splitID(args []string) (id string, rest []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

// requireID はIDを1つだけ受け取るコマンドの引数を検証する。
func (rt *runtime) requireID(fs *flag.FlagSet, id string) (string, error) {
	switch {
	case id == "" && fs.NArg() == 1:
		id = fs.Arg(0)
	case id != "" && fs.NArg() == 0:
	default:
		fmt.Fprintf(rt.streams.Err, "usage: %s ID\n", fs.Name())
		return "", errUsage
	}
	return id, nil
}

func (rt *runtime) runRegister(ctx context.Context, args []string) error {
	fs := rt.newFlagSet(CommandRegister)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password (prompted when omitted)")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	if *password == "" {
		pw, err := rt.prompt.password("Password: ")
		if err != nil {
			return err
		}
		*password = pw
	}

	auth := controller.NewAuth(rt.client, rt.session, rt.validator, rt.logger)
	loggedIn, err := auth.Register(ctx, model.RegisterInput{
		FirstName: strings.TrimSpace(*first),
		LastName:  strings.TrimSpace(*last),
		Username:  strings.TrimSpace(*username),
		Password:  *password,
	})
	if err != nil {
		rt.render.Message("! %s", auth.Message())
		return reported(err)
	}

	if loggedIn {
		rt.render.Message("Registered and logged in as %s.", *username)
	} else {
		rt.render.Message("Registered %s. Run `eventdesk login` to sign in.", *username)
	}
	return nil
}

func (rt *runtime) runLogin(ctx context.Context, args []string) error {
	fs := rt.newFlagSet(CommandLogin)
	username := fs.String("username", "", "username (prompted when omitted)")
	password := fs.String("password", "", "password (prompted when omitted)")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	if *username == "" {
		u, err := rt.prompt.line("Username: ")
		if err != nil {
			return err
		}
		*username = u
	}
	if *password == "" {
		pw, err := rt.prompt.password("Password: ")
		if err != nil {
			return err
		}
		*password = pw
	}

	auth := controller.NewAuth(rt.client, rt.session, rt.validator, rt.logger)
	if err := auth.Login(ctx, strings.TrimSpace(*username), *password); err != nil {
		rt.render.Message("! %s", auth.Message())
		return reported(err)
	}
	rt.render.Message("Logged in as %s.", *username)
	return nil
}

func (rt *runtime) runLogout(args []string) error {
	fs := rt.newFlagSet(CommandLogout)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	auth := controller.NewAuth(rt.client, rt.session, rt.validator, rt.logger)
	if err := auth.Logout(); err != nil {
		rt.render.Message("! %s", auth.Message())
		return reported(err)
	}
	rt.render.Message("Logged out.")
	return nil
}

func (rt *runtime) runWhoAmI(args []string) error {
	fs := rt.newFlagSet(CommandWhoAmI)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	auth := controller.NewAuth(rt.client, rt.session, rt.validator, rt.logger)
	id, err := auth.WhoAmI()
	switch {
	case errors.Is(err, model.ErrAuthRequired):
		rt.render.Message("Not logged in.")
		return reported(err)
	case errors.Is(err, model.ErrMalformedToken):
		rt.render.Message("The stored token cannot be decoded. Run `eventdesk login` again.")
		return reported(err)
	case err != nil:
		return err
	}
	rt.render.Identity(id, rt.now())
	return nil
}

// loadList は絞り込み条件でイベント一覧を読み込んだEventListを返す。
// 条件が無い場合は絞り込み用のタグも合わせて読み込む。
func (rt *runtime) loadList(ctx context.Context, criteria model.FilterCriteria) (*controller.EventList, error) {
	list := controller.NewEventList(rt.client, rt.session, rt.logger)
	if criteria.IsZero() {
		return list, list.Mount(ctx)
	}
	return list, list.ApplyFilter(ctx, criteria)
}

// filterFlags は一覧の絞り込みフラグを登録する。
func filterFlags(fs *flag.FlagSet) (tag, timeClass *string) {
	tag = fs.String("tag", "", "only events with this tag name")
	timeClass = fs.String("time", "", "past or upcoming")
	return tag, timeClass
}

func (rt *runtime) runList(ctx context.Context, args []string) error {
	fs := rt.newFlagSet(CommandList)
	tag, timeClass := filterFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	list, err := rt.loadList(ctx, model.FilterCriteria{
		TagName:   strings.TrimSpace(*tag),
		TimeClass: model.TimeClass(strings.ToLower(strings.TrimSpace(*timeClass))),
	})
	defer list.Close()

	if rerr := rt.render.EventList(list.View(), list.CanEdit); rerr != nil {
		return rerr
	}
	if err != nil {
		return reported(err)
	}
	return nil
}

func (rt *runtime) runShow(ctx context.Context, args []string) error {
	id, rest := splitID(args)
	fs := rt.newFlagSet(CommandShow)
	if help, err := parseFlags(fs, rest); help || err != nil {
		return err
	}
	id, err := rt.requireID(fs, id)
	if err != nil {
		return err
	}

	detail := controller.NewEventDetail(rt.client, rt.session, rt.logger)
	loadErr := detail.Load(ctx, id)
	if err := rt.render.EventDetail(detail.View()); err != nil {
		return err
	}
	if loadErr != nil {
		return reported(loadErr)
	}
	return nil
}

// runSave はcreateとeditを処理する。editではフラグで指定した項目だけを書き換える。
func (rt *runtime) runSave(ctx context.Context, cmd Command, args []string) error {
	var id string
	if cmd == CommandEdit {
		id, args = splitID(args)
	}

	fs := rt.newFlagSet(cmd)
	title := fs.String("title", "", "title")
	description := fs.String("description", "", "description")
	date := fs.String("date", "", "local date and time, "+controller.LocalLayout)
	location := fs.String("location", "", "location")
	eventType := fs.String("type", "", "public or private")
	var tags stringList
	fs.Var(&tags, "tag", "tag ID or name (repeatable; replaces the current tags)")
	showList := fs.Bool("list", false, "show the refreshed event list after saving")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if cmd == CommandEdit {
		var err error
		if id, err = rt.requireID(fs, id); err != nil {
			return err
		}
	} else if fs.NArg() > 0 {
		fmt.Fprintf(rt.streams.Err, "unexpected argument %q\n", fs.Arg(0))
		return errUsage
	}

	form := controller.NewEventForm(rt.client, rt.session, rt.validator, rt.cfg.Location, rt.logger)
	var list *controller.EventList
	if *showList {
		list = controller.NewEventList(rt.client, rt.session, rt.logger)
		defer list.Close()
		form.OnSaved(func(ctx context.Context, _ *model.Event) {
			// 失敗はlistのメッセージとして描画される
			_ = list.Refresh(ctx)
		})
	}
	if err := form.Load(ctx, id); err != nil {
		rt.render.FormResult(form.View(), nil)
		return reported(err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	known := form.View().Tags

	form.Update(func(f *controller.FormFields) {
		if set["title"] {
			f.Title = *title
		}
		if set["description"] {
			f.Description = *description
		}
		if set["date"] {
			f.DateTime = strings.TrimSpace(*date)
		}
		if set["location"] {
			f.Location = *location
		}
		if set["type"] {
			f.Type = model.EventType(strings.ToLower(strings.TrimSpace(*eventType)))
		}
		if set["tag"] {
			f.TagIDs = resolveTagIDs(tags, known)
		}
	})

	saved, err := form.Submit(ctx)
	rt.render.FormResult(form.View(), saved)
	if err != nil {
		return reported(err)
	}
	if list != nil {
		return rt.render.EventList(list.View(), list.CanEdit)
	}
	return nil
}

// resolveTagIDs はタグの指定（IDまたは名前）をIDに変換する。
// 名前は大文字小文字を区別せずに照合し、どちらにも一致しない値はIDとしてそのまま渡す。
// 同じタグの重複指定は1つにまとめる。
func resolveTagIDs(values []string, known []model.Tag) []string {
	ids := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		id := v
		for _, t := range known {
			if t.ID == v {
				id = t.ID
				break
			}
			if strings.EqualFold(t.Name, v) {
				id = t.ID
			}
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func (rt *runtime) runDelete(ctx context.Context, args []string) error {
	id, rest := splitID(args)
	fs := rt.newFlagSet(CommandDelete)
	yes := fs.Bool("yes", false, "delete without asking for confirmation")
	if help, err := parseFlags(fs, rest); help || err != nil {
		return err
	}
	id, err := rt.requireID(fs, id)
	if err != nil {
		return err
	}

	list := controller.NewEventList(rt.client, rt.session, rt.logger)
	defer list.Close()

	// 確認文にタイトルを出すため、認証済みの場合だけ対象を読み込んでおく。
	// 読み込めなくてもIDだけの確認文で削除は続ける
	if _, ok := rt.session.Get(); ok {
		detail := controller.NewEventDetail(rt.client, rt.session, rt.logger)
		if err := detail.Load(ctx, id); err != nil {
			rt.logger.Warn("削除対象のイベントを読み込めませんでした",
				slog.String("event_id", id),
				slog.String("error", err.Error()),
			)
		} else {
			list.Merge(*detail.View().Event)
		}
	}

	err = list.RequestDelete(ctx, id, rt.prompt.confirmer(*yes))
	switch {
	case errors.Is(err, model.ErrNotConfirmed):
		rt.render.Message("%s", list.View().Message)
		return nil
	case err != nil:
		rt.render.Message("! %s", list.View().Message)
		return reported(err)
	}
	rt.render.Message("Deleted event %s.", id)
	return nil
}

func (rt *runtime) runTags(ctx context.Context, args []string) error {
	fs := rt.newFlagSet(CommandTags)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	tags, err := rt.client.ListTags(ctx)
	if err != nil {
		rt.render.Message("! %s", model.DisplayMessage(err, "Failed to load tags"))
		return reported(err)
	}
	return rt.render.Tags(tags)
}

func (rt *runtime) runExport(ctx context.Context, args []string) error {
	fs := rt.newFlagSet(CommandExport)
	out := fs.String("o", "", "output file (default: stdout)")
	name := fs.String("name", "eventdesk", "calendar name")
	tag, timeClass := filterFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	list, err := rt.loadList(ctx, model.FilterCriteria{
		TagName:   strings.TrimSpace(*tag),
		TimeClass: model.TimeClass(strings.ToLower(strings.TrimSpace(*timeClass))),
	})
	defer list.Close()
	view := list.View()
	if err != nil {
		rt.render.Message("! %s", view.Message)
		return reported(err)
	}

	opts := calendar.Options{Name: *name, Now: rt.now}
	if *out == "" {
		_, err := calendar.Export(rt.streams.Out, view.Events, opts)
		return err
	}

	var buf bytes.Buffer
	res, err := calendar.Export(&buf, view.Events, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", *out, err)
	}
	rt.render.Message("Exported %d events to %s.", res.Exported, *out)
	if res.Skipped > 0 {
		rt.render.Message("Skipped %d events without a date.", res.Skipped)
	}
	return nil
}
