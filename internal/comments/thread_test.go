package comments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folio-blog/folioctl/internal/apierr"
	"github.com/folio-blog/folioctl/internal/models"
)

type fakeSession struct {
	mu      sync.Mutex
	token   string
	profile *models.Profile
	logouts int
}

func (s *fakeSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) Profile() (models.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return models.Profile{}, false
	}
	return *s.profile, true
}

func (s *fakeSession) Logout(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.profile = nil
	s.logouts++
	return nil
}

type fakeAPI struct {
	mu       sync.Mutex
	total    int
	pages    map[int][]models.Comment
	listHook func(page int)
	listErr  error
	calls    []string
	nextID   int64
	mutErr   error
	updated  map[int64]models.Comment
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) ListComments(_ context.Context, postID string, page, limit int) (models.CommentPage, error) {
	f.record("list")
	if f.listHook != nil {
		f.listHook(page)
	}
	if f.listErr != nil {
		return models.CommentPage{}, f.listErr
	}
	return models.CommentPage{Comments: f.pages[page], Total: f.total, Page: page, Limit: limit}, nil
}

func (f *fakeAPI) CreateComment(_ context.Context, token, postID, content string, parentID *int64) (models.Comment, error) {
	f.record("create")
	if f.mutErr != nil {
		return models.Comment{}, f.mutErr
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	return models.Comment{ID: id, PostID: postID, Content: content, ParentID: parentID}, nil
}

func (f *fakeAPI) UpdateComment(_ context.Context, token string, commentID int64, content string) (models.Comment, error) {
	f.record("update")
	if f.mutErr != nil {
		return models.Comment{}, f.mutErr
	}
	if c, ok := f.updated[commentID]; ok {
		return c, nil
	}
	return models.Comment{ID: commentID, Content: content}, nil
}

func (f *fakeAPI) DeleteComment(_ context.Context, token string, commentID int64) error {
	f.record("delete")
	return f.mutErr
}

// makePages builds total comments split into pages of limit, IDs starting at 1000.
func makePages(total, limit int) map[int][]models.Comment {
	pages := make(map[int][]models.Comment)
	for i := 0; i < total; i++ {
		p := i/limit + 1
		pages[p] = append(pages[p], models.Comment{ID: int64(1000 + i), PostID: "post"})
	}
	return pages
}

func newThread(t *testing.T, api *fakeAPI, sess *fakeSession, limit int) *Thread {
	t.Helper()
	th, err := NewThread(Options{API: api, Session: sess, PostID: "post", Limit: limit})
	require.NoError(t, err)
	return th
}

func signedIn() *fakeSession {
	return &fakeSession{token: "tok", profile: &models.Profile{ID: 1, Login: "octo"}}
}

func TestNewThreadValidation(t *testing.T) {
	_, err := NewThread(Options{Session: signedIn(), PostID: "p"})
	require.Error(t, err)
	_, err = NewThread(Options{API: &fakeAPI{}, PostID: "p"})
	require.Error(t, err)
	_, err = NewThread(Options{API: &fakeAPI{}, Session: signedIn(), PostID: " "})
	require.Error(t, err)

	th, err := NewThread(Options{API: &fakeAPI{}, Session: signedIn(), PostID: "p"})
	require.NoError(t, err)
	v := th.Snapshot()
	require.Equal(t, StatusIdle, v.Status)
	require.Equal(t, 20, v.Limit)
}

func TestPaginationScenario(t *testing.T) {
	api := &fakeAPI{total: 45, pages: makePages(45, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()

	require.NoError(t, th.Load(ctx, 1))
	v := th.Snapshot()
	require.Len(t, v.Comments, 20)
	require.True(t, v.HasMore)
	require.Equal(t, StatusLoaded, v.Status)

	require.NoError(t, th.LoadMore(ctx))
	v = th.Snapshot()
	require.Len(t, v.Comments, 40)
	require.True(t, v.HasMore)

	require.NoError(t, th.LoadMore(ctx))
	v = th.Snapshot()
	require.Len(t, v.Comments, 45)
	require.False(t, v.HasMore)
	require.Equal(t, 3, v.Page)

	calls := api.callCount()
	require.NoError(t, th.LoadMore(ctx))
	require.Equal(t, calls, api.callCount(), "LoadMore must not fetch when nothing is left")
}

func TestLoadLaterPageOnFreshThread(t *testing.T) {
	api := &fakeAPI{total: 60, pages: makePages(60, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()

	require.NoError(t, th.Load(ctx, 3))
	v := th.Snapshot()
	require.Len(t, v.Comments, 20)
	require.Equal(t, 3, v.Page)
	require.False(t, v.HasMore)

	require.NoError(t, th.LoadMore(ctx))
	require.Equal(t, 1, api.callCount())
	require.Equal(t, 3, th.Snapshot().Page)
}

func TestLoadMiddlePageOnFreshThread(t *testing.T) {
	api := &fakeAPI{total: 60, pages: makePages(60, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()

	require.NoError(t, th.Load(ctx, 2))
	require.True(t, th.Snapshot().HasMore)

	require.NoError(t, th.LoadMore(ctx))
	v := th.Snapshot()
	require.Len(t, v.Comments, 40)
	require.Equal(t, int64(1020), v.Comments[0].ID)
	require.False(t, v.HasMore)
}

func TestTwoFullPagesReachTotal(t *testing.T) {
	api := &fakeAPI{total: 40, pages: makePages(40, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()

	require.NoError(t, th.Load(ctx, 1))
	require.NoError(t, th.Load(ctx, 2))
	v := th.Snapshot()
	require.Len(t, v.Comments, 40)
	require.False(t, v.HasMore)
	require.Equal(t, int64(1000), v.Comments[0].ID)
	require.Equal(t, int64(1039), v.Comments[39].ID)
}

func TestLoadErrorStates(t *testing.T) {
	boom := errors.New("boom")
	api := &fakeAPI{total: 45, pages: makePages(45, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()

	api.listErr = boom
	require.ErrorIs(t, th.Load(ctx, 1), boom)
	v := th.Snapshot()
	require.Equal(t, StatusLoadError, v.Status)
	require.ErrorIs(t, v.Err, boom)

	api.listErr = nil
	require.NoError(t, th.Load(ctx, 1))

	api.listErr = boom
	require.ErrorIs(t, th.LoadMore(ctx), boom)
	v = th.Snapshot()
	require.Equal(t, StatusLoaded, v.Status)
	require.Len(t, v.Comments, 20)
	require.True(t, v.HasMore)
}

func TestRefreshDiscardsAccumulatedPages(t *testing.T) {
	api := &fakeAPI{total: 45, pages: makePages(45, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()

	require.NoError(t, th.Load(ctx, 1))
	require.NoError(t, th.LoadMore(ctx))
	require.Len(t, th.Snapshot().Comments, 40)

	require.NoError(t, th.Refresh(ctx))
	v := th.Snapshot()
	require.Len(t, v.Comments, 20)
	require.Equal(t, 1, v.Page)
	require.True(t, v.HasMore)
}

func TestSupersededLoadIsDropped(t *testing.T) {
	api := &fakeAPI{total: 45, pages: makePages(45, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()
	require.NoError(t, th.Load(ctx, 1))

	release := make(chan struct{})
	started := make(chan struct{})
	api.listHook = func(page int) {
		if page == 2 {
			close(started)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- th.LoadMore(ctx) }()
	<-started

	api.pages = map[int][]models.Comment{1: {{ID: 1}}}
	api.total = 1
	require.NoError(t, th.Refresh(ctx))

	close(release)
	require.NoError(t, <-done)

	v := th.Snapshot()
	require.Len(t, v.Comments, 1, "stale page 2 must not be appended after refresh")
	require.Equal(t, int64(1), v.Comments[0].ID)
	require.False(t, v.HasMore)
}

func TestCreateTopLevelPrependsAndCounts(t *testing.T) {
	api := &fakeAPI{total: 3, pages: makePages(3, 20), nextID: 1}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()
	require.NoError(t, th.Load(ctx, 1))

	created, err := th.Create(ctx, "  hello there  ", nil)
	require.NoError(t, err)
	require.Equal(t, "hello there", created.Content)

	v := th.Snapshot()
	require.Len(t, v.Comments, 4)
	require.Equal(t, created.ID, v.Comments[0].ID)
	require.Equal(t, 4, v.Total)
}

func TestCreateReplyAppendsToParentOnly(t *testing.T) {
	api := &fakeAPI{total: 3, pages: makePages(3, 20), nextID: 1}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()
	require.NoError(t, th.Load(ctx, 1))

	parent := int64(1001)
	reply, err := th.Create(ctx, "a reply", &parent)
	require.NoError(t, err)

	v := th.Snapshot()
	require.Equal(t, 3, v.Total)
	require.Len(t, v.Comments, 3)
	for _, c := range v.Comments {
		if c.ID == parent {
			require.Len(t, c.Replies, 1)
			require.Equal(t, reply.ID, c.Replies[0].ID)
		} else {
			require.Empty(t, c.Replies)
		}
	}
}

func TestContentValidationSkipsNetwork(t *testing.T) {
	api := &fakeAPI{}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()

	inputs := []string{"", "   ", "\n\t", strings.Repeat("x", 1001), strings.Repeat("é", 1001)}
	for _, in := range inputs {
		_, err := th.Create(ctx, in, nil)
		require.True(t, apierr.IsValidation(err), "create %q", in)
		_, err = th.Update(ctx, 1, in)
		require.True(t, apierr.IsValidation(err), "update %q", in)
	}
	require.Zero(t, api.callCount())

	_, err := th.Create(ctx, strings.Repeat("é", 1000), nil)
	require.NoError(t, err)
	_, err = th.Create(ctx, "  "+strings.Repeat("x", 1000)+"  ", nil)
	require.NoError(t, err)
}

func TestMutationsRequireSession(t *testing.T) {
	api := &fakeAPI{}
	th := newThread(t, api, &fakeSession{}, 20)
	ctx := context.Background()

	_, err := th.Create(ctx, "hi", nil)
	require.ErrorIs(t, err, apierr.ErrAuthRequired)
	_, err = th.Update(ctx, 1, "hi")
	require.ErrorIs(t, err, apierr.ErrAuthRequired)
	require.ErrorIs(t, th.Delete(ctx, 1), apierr.ErrAuthRequired)
	require.Zero(t, api.callCount())
}

func TestUnauthorizedLogsOut(t *testing.T) {
	api := &fakeAPI{total: 1, pages: makePages(1, 20)}
	sess := signedIn()
	th := newThread(t, api, sess, 20)
	ctx := context.Background()
	require.NoError(t, th.Load(ctx, 1))

	api.mutErr = &apierr.HTTPError{Status: http.StatusUnauthorized, Method: "POST", Path: "/posts/post/comments"}
	_, err := th.Create(ctx, "hi", nil)
	require.True(t, apierr.IsAuthRequired(err))
	require.Equal(t, 1, sess.logouts)
	require.Empty(t, sess.Token())

	v := th.Snapshot()
	require.Len(t, v.Comments, 1)
	require.Equal(t, 1, v.Total)
}

func TestServerErrorLeavesStateUnchanged(t *testing.T) {
	api := &fakeAPI{total: 2, pages: makePages(2, 20)}
	sess := signedIn()
	th := newThread(t, api, sess, 20)
	ctx := context.Background()
	require.NoError(t, th.Load(ctx, 1))
	before := th.Snapshot()

	api.mutErr = &apierr.HTTPError{Status: http.StatusInternalServerError}
	_, err := th.Create(ctx, "hi", nil)
	require.Equal(t, http.StatusInternalServerError, apierr.StatusCode(err))
	_, err = th.Update(ctx, 1000, "edit")
	require.Error(t, err)
	require.Error(t, th.Delete(ctx, 1000))

	require.Equal(t, before, th.Snapshot())
	require.Zero(t, sess.logouts)
}

func threadWithReplies(t *testing.T) (*Thread, *fakeAPI) {
	t.Helper()
	p1, p2 := int64(1), int64(2)
	api := &fakeAPI{
		total: 2,
		pages: map[int][]models.Comment{1: {
			{ID: 1, Content: "top one", Replies: []models.Comment{{ID: 11, ParentID: &p1, Content: "r11"}, {ID: 12, ParentID: &p1}}},
			{ID: 2, Content: "top two", Replies: []models.Comment{{ID: 21, ParentID: &p2}}},
		}},
	}
	th := newThread(t, api, signedIn(), 20)
	require.NoError(t, th.Load(context.Background(), 1))
	return th, api
}

func TestUpdateReplacesWithServerCopy(t *testing.T) {
	th, api := threadWithReplies(t)
	ctx := context.Background()

	api.updated = map[int64]models.Comment{
		11: {ID: 11, Content: "server says", Author: models.UserRef{Login: "octo"}},
		2:  {ID: 2, Content: "top edited"},
	}

	got, err := th.Update(ctx, 11, "client says")
	require.NoError(t, err)
	require.Equal(t, "server says", got.Content)

	_, err = th.Update(ctx, 2, "whatever")
	require.NoError(t, err)

	v := th.Snapshot()
	require.Equal(t, "server says", v.Comments[0].Replies[0].Content)
	require.Equal(t, "octo", v.Comments[0].Replies[0].Author.Login)
	require.Equal(t, "top edited", v.Comments[1].Content)
	require.Len(t, v.Comments[1].Replies, 1, "replies survive a top-level update")
}

func TestDeleteTopLevel(t *testing.T) {
	th, _ := threadWithReplies(t)
	require.NoError(t, th.Delete(context.Background(), 1))

	v := th.Snapshot()
	require.Len(t, v.Comments, 1)
	require.Equal(t, int64(2), v.Comments[0].ID)
	require.Equal(t, 1, v.Total)
}

func TestDeleteReplyKeepsTotal(t *testing.T) {
	th, _ := threadWithReplies(t)
	require.NoError(t, th.Delete(context.Background(), 12))

	v := th.Snapshot()
	require.Len(t, v.Comments, 2)
	require.Len(t, v.Comments[0].Replies, 1)
	require.Equal(t, int64(11), v.Comments[0].Replies[0].ID)
	require.Equal(t, 2, v.Total)
}

func TestDeleteUnloadedTopLevelDecrementsTotal(t *testing.T) {
	api := &fakeAPI{total: 45, pages: makePages(45, 20)}
	th := newThread(t, api, signedIn(), 20)
	ctx := context.Background()
	require.NoError(t, th.Load(ctx, 1))

	// 1040 lives on page 3, which was never fetched.
	require.NoError(t, th.Delete(ctx, 1040))

	v := th.Snapshot()
	require.Len(t, v.Comments, 20)
	require.Equal(t, 44, v.Total)
}

func TestDeleteFloorsTotalAtZero(t *testing.T) {
	th := newThread(t, &fakeAPI{}, signedIn(), 20)
	require.NoError(t, th.Delete(context.Background(), 999))
	require.Equal(t, 0, th.Snapshot().Total)
}

func TestSnapshotIsIsolated(t *testing.T) {
	th, _ := threadWithReplies(t)
	v := th.Snapshot()
	v.Comments[0].Content = "mutated"
	v.Comments[0].Replies[0].Content = "mutated"

	again := th.Snapshot()
	require.Equal(t, "top one", again.Comments[0].Content)
	require.Equal(t, "r11", again.Comments[0].Replies[0].Content)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "loading-more", StatusLoadingMore.String())
	require.Equal(t, "status(42)", Status(42).String())
}
