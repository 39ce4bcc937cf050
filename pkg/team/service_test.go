package team

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/teamadmin/internal/testutil"
	"github.com/Sternrassler/teamadmin/pkg/aggregate"
	"github.com/Sternrassler/teamadmin/pkg/cache"
	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/progress"
)

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Report(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) terminal() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, e := range r.events {
		if e.Phase.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

func testService(api API, mc *cache.Manager) *Service {
	cfg := DefaultServiceConfig()
	cfg.CallTimeout = 5 * time.Second
	cfg.Progress = progress.Config{}
	return NewService(api, mc, cfg)
}

func serveTeam(mock *testutil.MockAPI) {
	mock.SetPaged(apiPath(EndpointMembersList), apiPath(EndpointMembersListContinue), "members", [][]any{
		{memberJSON("u1", "ann@example.com", StatusActive), memberJSON("u2", "bob@example.com", StatusRemoved)},
		{memberJSON("u3", "cat@example.com", StatusSuspended), memberJSON("u4", "dan@example.com", StatusInvited)},
	}, false)
}

func TestService_ListMembers(t *testing.T) {
	mock, api := newTestAPI(t)
	serveTeam(mock)

	rec := &recorder{}
	res, err := testService(api, nil).ListMembers(context.Background(), rec)
	require.NoError(t, err)

	var got []string
	for _, m := range res.Items {
		got = append(got, m.TeamMemberID)
	}
	assert.Equal(t, []string{"u1", "u3"}, got)
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 2, res.Pages)

	terminal := rec.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, progress.PhaseCompleted, terminal[0].Phase)
	assert.Equal(t, res.RunID, terminal[0].RunID)
	assert.Equal(t, aggregate.MessageCompleted, terminal[0].Message)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, progress.ScanningMessage(1), rec.events[0].Message)
}

func TestService_ListMembers_ByEmail(t *testing.T) {
	mock, api := newTestAPI(t)
	serveTeam(mock)

	res, err := testService(api, nil).ListMembers(context.Background(), nil, "CAT@example.com", "bob@example.com")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "cat@example.com", res.Items[0].Email)
}

func TestService_ListPaperDocs(t *testing.T) {
	mock, api := newTestAPI(t)
	serveTeam(mock)
	servePaperDocsByMember(mock, map[string][]string{
		"u1": {"a1", "a2"},
		"u2": {"removed-doc"},
		"u3": {"c1"},
	})

	t.Run("without metadata", func(t *testing.T) {
		rec := &recorder{}
		res, err := testService(api, nil).ListPaperDocs(context.Background(), rec, false)
		require.NoError(t, err)

		var got []string
		for _, d := range res.Items {
			got = append(got, d.DocID)
			assert.False(t, d.Enriched())
		}
		assert.Equal(t, []string{"a1", "a2", "c1"}, got)

		terminal := rec.terminal()
		require.Len(t, terminal, 2)
		assert.NotEqual(t, terminal[0].RunID, terminal[1].RunID)
		assert.Equal(t, 3, terminal[1].Counter)
	})

	t.Run("with metadata", func(t *testing.T) {
		mock.SetHandler(apiPath(EndpointPaperGetMetadata), func(w http.ResponseWriter, _ *http.Request, body []byte) {
			var req struct {
				DocID string `json:"doc_id"`
			}
			_ = json.Unmarshal(body, &req)
			if req.DocID == "a2" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error_summary": "doc_not_found/"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(metadataJSON(req.DocID, "Title "+req.DocID)))
		})

		svc := testService(api, cache.NewManager(nil, cache.DefaultConfig()))
		res, err := svc.ListPaperDocs(context.Background(), nil, true)
		require.NoError(t, err)

		require.Len(t, res.Items, 2)
		assert.Equal(t, "Title a1", res.Items[0].Title)
		assert.Equal(t, "Title c1", res.Items[1].Title)
		assert.Equal(t, "cat@example.com", res.Items[1].MemberEmail)
		assert.Equal(t, 3, res.Scanned)

		require.Len(t, res.SoftErrors, 1)
		assert.Equal(t, "a2", res.SoftErrors[0].Key)
		assert.ErrorIs(t, res.SoftErrors[0], client.ErrProvider)
	})
}

func TestService_ListPaperDocs_MemberFailure(t *testing.T) {
	mock, api := newTestAPI(t)
	mock.SetResponse(apiPath(EndpointMembersList), testutil.NewProviderErrorResponse(http.StatusUnauthorized, "invalid_access_token/"))

	rec := &recorder{}
	res, err := testService(api, nil).ListPaperDocs(context.Background(), rec, true)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, client.ErrProvider)

	terminal := rec.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, progress.PhaseFailed, terminal[0].Phase)
	assert.Empty(t, mock.Requests(apiPath(EndpointPaperDocsList)))
}

func TestService_AuditEvents(t *testing.T) {
	mock, api := newTestAPI(t)
	mock.SetPaged(apiPath(EndpointGetEvents), apiPath(EndpointGetEventsContinue), "events", [][]any{
		{
			eventJSON("2024-01-01T10:00:00Z", "logins", "login_success", userActor("ann@example.com")),
			eventJSON("2024-01-01T11:00:00Z", "logins", "login_fail", userActor("bob@example.com")),
		},
	}, false)

	res, err := testService(api, nil).AuditEvents(context.Background(), nil, EventQuery{}, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "login_fail", res.Items[0].EventType)
	assert.Equal(t, 2, res.Scanned)

	body := decodeBody(t, mock.Requests(apiPath(EndpointGetEvents))[0].Body)
	assert.EqualValues(t, DefaultPageLimit, body["limit"])
}

func TestService_ListFolder(t *testing.T) {
	mock, api := newTestAPI(t)
	mock.SetPaged(apiPath(EndpointListFolder), apiPath(EndpointListFolderContinue), "entries", [][]any{
		{entryJSON("file", "a.txt", "/Docs", 1)},
	}, false)

	res, err := testService(api, nil).ListFolder(context.Background(), nil, "u1", "/Docs")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "/Docs/a.txt", res.Items[0].PathDisplay)

	body := decodeBody(t, mock.Requests(apiPath(EndpointListFolder))[0].Body)
	assert.Equal(t, "/Docs", body["path"])
}

func TestService_Cancelled(t *testing.T) {
	_, api := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testService(api, nil).ListMembers(ctx, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestService_PassThrough(t *testing.T) {
	mock, api := newTestAPI(t)
	mock.SetResponse(apiPath(EndpointTeamFolderCreate), folderResponse("active"))
	mock.SetResponse(apiPath(EndpointTeamFolderSyncSettings), folderResponse("active"))
	mock.SetResponse(apiPath(EndpointTeamFolderArchive), testutil.NewJSONResponse(`{".tag": "async_job_id", "async_job_id": "j"}`))
	mock.SetResponse(apiPath(EndpointMembersAdd), testutil.NewJSONResponse(
		`{".tag": "complete", "complete": [{".tag": "duplicate_member_persistent_id", "duplicate_member_persistent_id": "x@example.com"}]}`))

	svc := testService(api, nil)
	ctx := context.Background()

	f, err := svc.CreateTeamFolder(ctx, "Engineering")
	require.NoError(t, err)
	assert.Equal(t, "tf1", f.ID)

	f, err = svc.SetTeamFolderStatus(ctx, "tf1", false)
	require.NoError(t, err)
	assert.Equal(t, "archive_in_progress", f.Status)

	_, err = svc.SetTeamFolderSync(ctx, "tf1", false)
	require.NoError(t, err)

	_, err = svc.SetTeamFolderStatus(ctx, "", true)
	assert.ErrorIs(t, err, client.ErrConfig)

	results, err := svc.AddMembers(ctx, []NewMember{{Email: "x@example.com"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK())
	assert.Equal(t, "x@example.com", results[0].Email)
}

func TestService_MemberByEmail(t *testing.T) {
	mock, api := newTestAPI(t)
	serveTeam(mock)
	svc := testService(api, nil)

	m, err := svc.MemberByEmail(context.Background(), " BOB@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u2", m.TeamMemberID)

	reqs := mock.Requests(apiPath(EndpointMembersList))
	require.NotEmpty(t, reqs)
	body := decodeBody(t, reqs[0].Body)
	assert.Equal(t, true, body["include_removed"])

	_, err = svc.MemberByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = svc.MemberByEmail(context.Background(), "")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestService_MemberByEmail_FetchError(t *testing.T) {
	mock, api := newTestAPI(t)
	mock.SetResponse(apiPath(EndpointMembersList), testutil.NewProviderErrorResponse(http.StatusUnauthorized, "invalid_access_token/"))

	_, err := testService(api, nil).MemberByEmail(context.Background(), "ann@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrProvider)
	assert.NotErrorIs(t, err, ErrMemberNotFound)
}

func TestService_ListMembers_CooldownLongerThanCallTimeout(t *testing.T) {
	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)
	mock.SetSequence(apiPath(EndpointMembersList),
		testutil.NewRateLimitResponse(1),
		testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       `{"members": [], "cursor": "", "has_more": false}`,
			Headers:    map[string]string{"Content-Type": "application/json"},
		},
	)

	cc := client.DefaultConfig("test-token", "TeamAdmin/test (ops@example.com)")
	cc.BaseURL = mock.URL()
	cc.ContentURL = mock.URL()
	cc.RequestsPerSecond = 0
	cc.MaxRetries = 2
	cc.InitialBackoff = 5 * time.Millisecond
	api, err := client.New(cc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })

	cfg := DefaultServiceConfig()
	cfg.CallTimeout = 300 * time.Millisecond
	cfg.Progress = progress.Config{}

	res, err := NewService(api, nil, cfg).ListMembers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 2, mock.GetRequestCount())
}
