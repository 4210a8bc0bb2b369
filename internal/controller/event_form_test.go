package controller

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/eventdesk/internal/apitest"
	"github.com/hitoshi/eventdesk/internal/model"
	"github.com/hitoshi/eventdesk/internal/validation"
)

var jst = time.FixedZone("JST", 9*60*60)

func newForm(f *fixture) *EventForm {
	return NewEventForm(f.client, f.session, validation.New(), jst, discardLogger())
}

func fillValid(fields *FormFields) {
	fields.Title = "Go Meetup"
	fields.Description = "Lightning talks"
	fields.DateTime = "2030-05-01T19:00"
	fields.Location = "Shibuya"
}

func TestEventForm_NewStartsFromEmptyTemplate(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.AddTag("music")
	f := newFixture(t, srv, "")

	form := newForm(f)
	require.NoError(t, form.Load(context.Background(), ""))

	v := form.View()
	assert.Equal(t, StateLoaded, v.State)
	assert.Empty(t, v.EventID)
	assert.False(t, form.Editing())
	assert.Equal(t, model.EventTypePublic, v.Fields.Type)
	assert.Empty(t, v.Fields.TagIDs)
	assert.Empty(t, v.Fields.Title)
	assert.Len(t, v.Tags, 1)
}

func TestEventForm_SubmitUnauthenticatedMakesNoNetworkCall(t *testing.T) {
	srv := apitest.NewServer(t)
	f := newFixture(t, srv, "")

	form := newForm(f)
	form.Update(fillValid)

	_, err := form.Submit(context.Background())

	assert.ErrorIs(t, err, model.ErrAuthRequired)
	assert.Zero(t, srv.TotalRequests())
	v := form.View()
	assert.Equal(t, "Not authenticated", v.Message)
	assert.Equal(t, "Go Meetup", v.Fields.Title, "fields are kept")
}

func TestEventForm_SubmitWithMalformedTokenIsUnauthenticated(t *testing.T) {
	srv := apitest.NewServer(t)
	f := newFixture(t, srv, "garbage-token")

	form := newForm(f)
	form.Update(fillValid)

	_, err := form.Submit(context.Background())

	assert.ErrorIs(t, err, model.ErrAuthRequired)
	assert.Zero(t, srv.TotalRequests())
}

func TestEventForm_EditPrepopulatesEveryField(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := srv.AddUser("alice", "pw")
	music := srv.AddTag("music")
	srv.AddTag("unused")
	jazz := srv.AddTag("jazz")
	when := time.Date(2030, 7, 20, 10, 45, 0, 0, time.UTC)
	srv.AddEvent(model.Event{
		ID: "ev42", Title: "Jazz Night", Description: "Live band", DateTime: when,
		Location: "Blue Note", Type: model.EventTypePrivate, UserID: alice,
		Tags: []model.Tag{music, jazz},
	})
	f := newFixture(t, srv, srv.IssueToken(alice))

	form := newForm(f)
	require.NoError(t, form.Load(context.Background(), "ev42"))

	v := form.View()
	assert.Equal(t, StateLoaded, v.State)
	assert.Equal(t, "ev42", v.EventID)
	assert.True(t, form.Editing())
	assert.Equal(t, FormFields{
		Title:       "Jazz Night",
		Description: "Live band",
		DateTime:    "2030-07-20T19:45",
		Location:    "Blue Note",
		Type:        model.EventTypePrivate,
		TagIDs:      []string{music.ID, jazz.ID},
	}, v.Fields)
	assert.Len(t, v.Tags, 3)

	parsed, err := ParseLocal(v.Fields.DateTime, jst)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(when), "parse(format(x)) must equal x at minute precision")
}

func TestEventForm_LoadFailureSurfacesMessage(t *testing.T) {
	srv := apitest.NewServer(t)
	f := newFixture(t, srv, "")

	form := newForm(f)
	err := form.Load(context.Background(), "missing")

	assert.Error(t, err)
	v := form.View()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "Event not found", v.Message)
}

func TestEventForm_SubmitAfterLoadFailureDoesNotCreate(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := srv.AddUser("alice", "pw")
	f := newFixture(t, srv, srv.IssueToken(alice))
	ctx := context.Background()

	form := newForm(f)
	require.Error(t, form.Load(ctx, "missing-id"))
	assert.True(t, form.Editing(), "requested id is kept")
	form.Update(fillValid)

	saved, err := form.Submit(ctx)

	assert.ErrorIs(t, err, model.ErrNotLoaded)
	assert.Nil(t, saved)
	assert.Zero(t, srv.RequestCount(http.MethodPost, "/events"))
	assert.Zero(t, srv.RequestCount(http.MethodPut, "/events/{id}"))
	assert.Empty(t, srv.Events())
	v := form.View()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "missing-id", v.EventID)
	assert.Equal(t, "The event could not be loaded, so it cannot be saved", v.Message)
	assert.Equal(t, "Go Meetup", v.Fields.Title, "fields are kept")

	// 新規作成フォームとして読み込み直せば保存できる
	require.NoError(t, form.Load(ctx, ""))
	form.Update(fillValid)
	_, err = form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.RequestCount(http.MethodPost, "/events"))
}

func TestEventForm_CreateAttachesUserIDAndNotifies(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := srv.AddUser("alice", "pw")
	tag := srv.AddTag("tech")
	f := newFixture(t, srv, srv.IssueToken(alice))
	ctx := context.Background()

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Refresh(ctx))
	require.Empty(t, list.View().Events)

	form := newForm(f)
	var notified *model.Event
	form.OnSaved(func(ctx context.Context, ev *model.Event) {
		notified = ev
		require.NoError(t, list.Refresh(ctx))
	})
	require.NoError(t, form.Load(ctx, ""))
	form.Update(fillValid)
	form.ToggleTag(tag.ID)

	saved, err := form.Submit(ctx)
	require.NoError(t, err)

	assert.Equal(t, alice, saved.UserID)
	assert.Same(t, saved, notified)
	assert.True(t, time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC).Equal(saved.DateTime))
	assert.Equal(t, []string{tag.ID}, saved.TagIDs())
	assert.Equal(t, []string{saved.ID}, ids(list.View().Events), "list is refreshed after save")
	assert.Empty(t, form.View().Message)
}

func TestEventForm_UpdateExistingEvent(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := srv.AddUser("alice", "pw")
	srv.AddEvent(model.Event{ID: "ev42", Title: "Old", DateTime: time.Now().Truncate(time.Minute), Location: "Here", UserID: alice})
	f := newFixture(t, srv, srv.IssueToken(alice))
	ctx := context.Background()

	form := newForm(f)
	require.NoError(t, form.Load(ctx, "ev42"))
	form.Update(func(fields *FormFields) { fields.Title = "New" })

	saved, err := form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ev42", saved.ID)
	assert.Equal(t, "New", saved.Title)
	assert.Equal(t, 1, srv.RequestCount(http.MethodPut, "/events/{id}"))
	assert.Zero(t, srv.RequestCount(http.MethodPost, "/events"))

	stored, _ := srv.Event("ev42")
	assert.Equal(t, "New", stored.Title)
}

func TestEventForm_FailureKeepsFields(t *testing.T) {
	tests := []struct {
		name        string
		editing     bool
		failStatus  int
		failMessage string
		wantMessage string
	}{
		{"create with server message", false, http.StatusInternalServerError, "database unavailable", "database unavailable"},
		{"create without server message", false, http.StatusInternalServerError, "", "Failed to create event"},
		{"update without server message", true, http.StatusBadGateway, "", "Failed to update event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := apitest.NewServer(t)
			alice := srv.AddUser("alice", "pw")
			srv.AddEvent(model.Event{ID: "ev1", Title: "Before", DateTime: time.Now(), Location: "x", UserID: alice})
			f := newFixture(t, srv, srv.IssueToken(alice))
			ctx := context.Background()

			form := newForm(f)
			id := ""
			method, route := http.MethodPost, "/events"
			if tt.editing {
				id = "ev1"
				method, route = http.MethodPut, "/events/{id}"
			}
			require.NoError(t, form.Load(ctx, id))
			form.Update(fillValid)
			want := form.Fields()

			srv.FailNext(method, route, tt.failStatus, tt.failMessage, 1)
			_, err := form.Submit(ctx)

			require.Error(t, err)
			v := form.View()
			assert.Equal(t, tt.wantMessage, v.Message)
			assert.Equal(t, want, v.Fields)

			// 修正せずに再送信できる
			_, err = form.Submit(ctx)
			require.NoError(t, err)
		})
	}
}

func TestEventForm_ForbiddenUpdateShowsServerMessage(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := srv.AddUser("alice", "pw")
	bob := srv.AddUser("bob", "pw")
	srv.AddEvent(model.Event{ID: "ev1", Title: "Alice's", DateTime: time.Now(), Location: "x", UserID: alice})
	f := newFixture(t, srv, srv.IssueToken(bob))
	ctx := context.Background()

	form := newForm(f)
	require.NoError(t, form.Load(ctx, "ev1"))
	form.Update(func(fields *FormFields) { fields.Title = "Bob was here" })

	_, err := form.Submit(ctx)

	require.Error(t, err)
	assert.Equal(t, "You can only modify your own events", form.View().Message)
	assert.Equal(t, "Bob was here", form.Fields().Title)
	stored, _ := srv.Event("ev1")
	assert.Equal(t, "Alice's", stored.Title)
}

func TestEventForm_ValidationFailsBeforeNetwork(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := srv.AddUser("alice", "pw")
	f := newFixture(t, srv, srv.IssueToken(alice))

	form := newForm(f)
	form.Update(func(fields *FormFields) {
		fillValid(fields)
		fields.Title = "  "
		fields.DateTime = "01/05/2030 19:00"
	})

	_, err := form.Submit(context.Background())

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, srv.TotalRequests())
	v := form.View()
	assert.Equal(t, "is required", v.FieldErrors["title"])
	assert.Equal(t, "must use the format YYYY-MM-DDThh:mm", v.FieldErrors["date_time"])
	assert.Equal(t, vErr.Error(), v.Message)
}

func TestEventForm_ToggleTag(t *testing.T) {
	srv := apitest.NewServer(t)
	form := newForm(newFixture(t, srv, ""))

	form.ToggleTag("a")
	form.ToggleTag("b")
	form.ToggleTag("a")

	assert.Equal(t, []string{"b"}, form.Fields().TagIDs)
}

func TestFormatParseLocal_RoundTrip(t *testing.T) {
	zones := []*time.Location{time.UTC, jst, time.FixedZone("NST", -(3*60*60 + 30*60))}
	instants := []time.Time{
		time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC),
		time.Date(1999, 12, 31, 15, 0, 0, 0, time.UTC),
		time.Date(2030, 1, 1, 0, 1, 59, 999, time.UTC),
	}

	for _, loc := range zones {
		for _, x := range instants {
			got, err := ParseLocal(FormatLocal(x, loc), loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(x.Truncate(time.Minute)), "%v in %s: got %v", x, loc, got)
		}
	}

	assert.Empty(t, FormatLocal(time.Time{}, jst))
	_, err := ParseLocal("2030-13-01T00:00", jst)
	assert.Error(t, err)
}
