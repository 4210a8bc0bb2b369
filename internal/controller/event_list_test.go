package controller

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/eventdesk/internal/apitest"
	"github.com/hitoshi/eventdesk/internal/model"
)

// seedTwoEvents はaliceが作成したe1, e2をこの順で登録し、aliceのIDを返す。
func seedTwoEvents(srv *apitest.Server) string {
	alice := srv.AddUser("alice", "pw")
	srv.AddEvent(model.Event{ID: "e1", Title: "First", DateTime: time.Now().Add(time.Hour), Location: "A", UserID: alice})
	srv.AddEvent(model.Event{ID: "e2", Title: "Second", DateTime: time.Now().Add(2 * time.Hour), Location: "B", UserID: alice})
	return alice
}

func TestEventList_MountLoadsTagsAndEventsInServerOrder(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.AddTag("music")
	srv.AddEvent(model.Event{ID: "z", Title: "Zeta", DateTime: time.Now()})
	srv.AddEvent(model.Event{ID: "a", Title: "Alpha", DateTime: time.Now()})
	f := newFixture(t, srv, "")

	list := NewEventList(f.client, f.session, discardLogger())
	assert.Equal(t, StateIdle, list.View().State)

	require.NoError(t, list.Mount(context.Background()))

	v := list.View()
	assert.Equal(t, StateLoaded, v.State)
	assert.Equal(t, []string{"z", "a"}, ids(v.Events), "server order must be preserved")
	require.Len(t, v.Tags, 1)
	assert.Equal(t, "music", v.Tags[0].Name)
	assert.Empty(t, v.Message)
}

func TestEventList_TagFailureIsNotFatal(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.AddEvent(model.Event{ID: "e1", Title: "x", DateTime: time.Now()})
	srv.FailNext(http.MethodGet, "/tags", http.StatusInternalServerError, "tags down", 1)
	f := newFixture(t, srv, "")

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Mount(context.Background()))

	v := list.View()
	assert.Equal(t, StateLoaded, v.State)
	assert.Equal(t, []string{"e1"}, ids(v.Events))
	assert.Empty(t, v.Tags)
}

func TestEventList_ErrorStateSurfacesServerMessageOrFallback(t *testing.T) {
	srv := apitest.NewServer(t)
	f := newFixture(t, srv, "")
	list := NewEventList(f.client, f.session, discardLogger())

	srv.FailNext(http.MethodGet, "/events", http.StatusBadRequest, "filters are broken", 1)
	assert.Error(t, list.Refresh(context.Background()))
	v := list.View()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "filters are broken", v.Message)

	srv.FailNext(http.MethodGet, "/events", http.StatusInternalServerError, "", 1)
	assert.Error(t, list.Refresh(context.Background()))
	assert.Equal(t, "Failed to load events", list.View().Message)

	// 回復すればLoadedに戻る
	require.NoError(t, list.Refresh(context.Background()))
	v = list.View()
	assert.Equal(t, StateLoaded, v.State)
	assert.Empty(t, v.Message)
}

func TestEventList_DeleteWithoutConfirmationChangesNothing(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := seedTwoEvents(srv)
	f := newFixture(t, srv, srv.IssueToken(alice))
	ctx := context.Background()

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Refresh(ctx))
	require.Equal(t, []string{"e1", "e2"}, ids(list.View().Events))
	before := srv.TotalRequests()

	var asked string
	err := list.RequestDelete(ctx, "e1", ConfirmFunc(func(prompt string) bool {
		asked = prompt
		return false
	}))

	assert.ErrorIs(t, err, model.ErrNotConfirmed)
	assert.Equal(t, `Delete event "First" (e1)?`, asked)
	assert.Equal(t, []string{"e1", "e2"}, ids(list.View().Events))
	assert.Equal(t, before, srv.TotalRequests(), "no network call without confirmation")
	assert.Len(t, srv.Events(), 2)

	// 確認手段が無い場合も実行しない
	assert.ErrorIs(t, list.RequestDelete(ctx, "e1", nil), model.ErrNotConfirmed)
	assert.Equal(t, before, srv.TotalRequests())
}

func TestEventList_DeleteWithConfirmationRemovesOnlyThatEvent(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := seedTwoEvents(srv)
	f := newFixture(t, srv, srv.IssueToken(alice))
	ctx := context.Background()

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Refresh(ctx))

	err := list.RequestDelete(ctx, "e1", ConfirmFunc(func(string) bool { return true }))
	require.NoError(t, err)

	assert.Equal(t, []string{"e2"}, ids(list.View().Events))
	assert.Equal(t, 1, srv.RequestCount(http.MethodDelete, "/events/{id}"))
	assert.Equal(t, 1, srv.RequestCount(http.MethodGet, "/events"), "delete must not refetch the list")
	_, exists := srv.Event("e1")
	assert.False(t, exists)
}

func TestEventList_DeleteUnauthenticatedShortCircuits(t *testing.T) {
	srv := apitest.NewServer(t)
	seedTwoEvents(srv)
	f := newFixture(t, srv, "")
	ctx := context.Background()

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Refresh(ctx))
	before := srv.TotalRequests()

	confirmed := false
	err := list.RequestDelete(ctx, "e1", ConfirmFunc(func(string) bool {
		confirmed = true
		return true
	}))

	assert.ErrorIs(t, err, model.ErrAuthRequired)
	assert.False(t, confirmed, "confirmation is not requested when unauthenticated")
	assert.Equal(t, before, srv.TotalRequests())
	assert.Equal(t, "Not authenticated", list.View().Message)
	assert.Equal(t, []string{"e1", "e2"}, ids(list.View().Events))
}

func TestEventList_DeleteFailureLeavesListUnchanged(t *testing.T) {
	srv := apitest.NewServer(t)
	seedTwoEvents(srv)
	mallory := srv.AddUser("mallory", "pw")
	f := newFixture(t, srv, srv.IssueToken(mallory))
	ctx := context.Background()

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Refresh(ctx))

	// 所有者判定をすり抜けて削除を試みても、サーバーが拒否する
	assert.False(t, list.CanEdit(&list.View().Events[0]))
	err := list.RequestDelete(ctx, "e1", ConfirmFunc(func(string) bool { return true }))

	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	v := list.View()
	assert.Equal(t, []string{"e1", "e2"}, ids(v.Events))
	assert.Equal(t, "You can only modify your own events", v.Message)
	assert.Len(t, srv.Events(), 2)
}

func TestEventList_ApplyFilterSendsCriteriaWithoutCaching(t *testing.T) {
	srv := apitest.NewServer(t)
	music := srv.AddTag("music")
	srv.AddEvent(model.Event{ID: "m1", Title: "Gig", DateTime: time.Now(), Tags: []model.Tag{music}})
	srv.AddEvent(model.Event{ID: "o1", Title: "Other", DateTime: time.Now()})
	f := newFixture(t, srv, "")
	ctx := context.Background()

	var mu sync.Mutex
	var queries []string
	srv.OnList(func(r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		queries = append(queries, r.URL.RawQuery)
	})

	list := NewEventList(f.client, f.session, discardLogger())
	criteria := model.FilterCriteria{TagName: "music"}
	require.NoError(t, list.ApplyFilter(ctx, criteria))
	require.NoError(t, list.ApplyFilter(ctx, criteria))
	require.NoError(t, list.ApplyFilter(ctx, model.FilterCriteria{}))

	assert.Equal(t, []string{"tags=music", "tags=music", ""}, queries)
	assert.Equal(t, []string{"m1", "o1"}, ids(list.View().Events))
}

func TestEventList_ApplyFilterRejectsUnknownTimeClass(t *testing.T) {
	srv := apitest.NewServer(t)
	f := newFixture(t, srv, "")

	list := NewEventList(f.client, f.session, discardLogger())
	err := list.ApplyFilter(context.Background(), model.FilterCriteria{TimeClass: "present"})

	assert.Error(t, err)
	assert.Zero(t, srv.TotalRequests())
	assert.Equal(t, model.FilterCriteria{}, list.View().Criteria)
	assert.NotEmpty(t, list.View().Message)
}

// gatedServer は指定クエリのGET /eventsを、解放されるまで止めるテスト用サーバーを返す。
// arrivedはリクエストがサーバーに届いたときに閉じられる。
func gatedServer(t *testing.T, queries ...string) (srv *apitest.Server, arrived, release map[string]chan struct{}) {
	t.Helper()

	srv = apitest.NewServer(t)
	arrived = make(map[string]chan struct{})
	release = make(map[string]chan struct{})
	for _, q := range queries {
		arrived[q] = make(chan struct{})
		release[q] = make(chan struct{})
	}

	srv.OnList(func(r *http.Request) {
		q := r.URL.RawQuery
		if ch, ok := arrived[q]; ok {
			close(ch)
			<-release[q]
		}
	})
	return srv, arrived, release
}

func TestEventList_OverlappingFiltersRenderLastApplied(t *testing.T) {
	const (
		pastQuery  = "type=past"
		musicQuery = "tags=music"
	)

	tests := []struct {
		name         string
		releaseOrder []string
	}{
		{"stale response arrives last", []string{musicQuery, pastQuery}},
		{"stale response arrives first", []string{pastQuery, musicQuery}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, arrived, release := gatedServer(t, pastQuery, musicQuery)
			music := srv.AddTag("music")
			srv.AddEvent(model.Event{ID: "past-1", Title: "Old", DateTime: time.Now().Add(-48 * time.Hour)})
			srv.AddEvent(model.Event{ID: "music-1", Title: "Gig", DateTime: time.Now().Add(48 * time.Hour), Tags: []model.Tag{music}})
			f := newFixture(t, srv, "")
			ctx := context.Background()

			list := NewEventList(f.client, f.session, discardLogger())

			done := map[string]chan error{
				pastQuery:  make(chan error, 1),
				musicQuery: make(chan error, 1),
			}

			go func() { done[pastQuery] <- list.ApplyFilter(ctx, model.FilterCriteria{TimeClass: model.TimeClassPast}) }()
			<-arrived[pastQuery]
			go func() { done[musicQuery] <- list.ApplyFilter(ctx, model.FilterCriteria{TagName: "music"}) }()
			<-arrived[musicQuery]

			for _, q := range tt.releaseOrder {
				close(release[q])
				require.NoError(t, <-done[q])
			}

			v := list.View()
			assert.Equal(t, StateLoaded, v.State)
			assert.Equal(t, []string{"music-1"}, ids(v.Events))
			assert.Equal(t, model.FilterCriteria{TagName: "music"}, v.Criteria)
			assert.Equal(t, 2, srv.RequestCount(http.MethodGet, "/events"))
		})
	}
}

func TestEventList_CloseSuppressesLateResponse(t *testing.T) {
	srv, arrived, release := gatedServer(t, "")
	srv.AddEvent(model.Event{ID: "e1", Title: "x", DateTime: time.Now()})
	f := newFixture(t, srv, "")

	list := NewEventList(f.client, f.session, discardLogger())

	done := make(chan error, 1)
	go func() { done <- list.Refresh(context.Background()) }()
	<-arrived[""]

	list.Close()
	close(release[""])

	require.NoError(t, <-done)
	assert.Empty(t, list.View().Events)

	// 閉じた後の取得はネットワークを使わない
	before := srv.TotalRequests()
	require.NoError(t, list.Refresh(context.Background()))
	assert.Equal(t, before, srv.TotalRequests())
}

func TestEventList_MergeReplacesOrAppends(t *testing.T) {
	srv := apitest.NewServer(t)
	seedTwoEvents(srv)
	f := newFixture(t, srv, "")

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Refresh(context.Background()))

	list.Merge(model.Event{ID: "e1", Title: "Renamed"})
	list.Merge(model.Event{ID: "e3", Title: "New"})

	v := list.View()
	assert.Equal(t, []string{"e1", "e2", "e3"}, ids(v.Events))
	assert.Equal(t, "Renamed", v.Events[0].Title)
}

func TestEventList_CanEditUsesDecodedIdentity(t *testing.T) {
	srv := apitest.NewServer(t)
	alice := seedTwoEvents(srv)
	ctx := context.Background()

	owner := newFixture(t, srv, srv.IssueToken(alice))
	list := NewEventList(owner.client, owner.session, discardLogger())
	require.NoError(t, list.Refresh(ctx))
	ev := list.View().Events[0]
	assert.True(t, list.CanEdit(&ev))

	anonymous := newFixture(t, srv, "")
	assert.False(t, NewEventList(anonymous.client, anonymous.session, discardLogger()).CanEdit(&ev))

	malformed := newFixture(t, srv, "not.a.jwt")
	assert.False(t, NewEventList(malformed.client, malformed.session, discardLogger()).CanEdit(&ev))
}

func TestEventList_ViewIsSnapshot(t *testing.T) {
	srv := apitest.NewServer(t)
	seedTwoEvents(srv)
	f := newFixture(t, srv, "")

	list := NewEventList(f.client, f.session, discardLogger())
	require.NoError(t, list.Refresh(context.Background()))

	v := list.View()
	v.Events[0].Title = "mutated"
	assert.Equal(t, "First", list.View().Events[0].Title)
}
