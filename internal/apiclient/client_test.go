package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folio-blog/folioctl/internal/apierr"
	"github.com/folio-blog/folioctl/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", WithRateLimit(0, 0))
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	_, err = New("api.example.dev")
	require.ErrorContains(t, err, "must be absolute")
}

func TestListComments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/posts/hello-world/comments", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "20", r.URL.Query().Get("limit"))
		require.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"comments":[{"id":1,"postId":"hello-world","content":"hi","replies":[{"id":2,"parentId":1}]}],"total":21,"page":2,"limit":20}`)
	})

	page, err := c.ListComments(context.Background(), "hello-world", 2, 20)
	require.NoError(t, err)
	require.Equal(t, 21, page.Total)
	require.Len(t, page.Comments, 1)
	require.Len(t, page.Comments[0].Replies, 1)
	require.Equal(t, int64(1), *page.Comments[0].Replies[0].ParentID)
}

func TestCreateCommentSendsBearerAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/posts/p1/comments", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["content"])
		require.Equal(t, float64(7), body["parentId"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":8,"postId":"p1","content":"hello","parentId":7}`)
	})

	parent := int64(7)
	got, err := c.CreateComment(context.Background(), "tok", "p1", "hello", &parent)
	require.NoError(t, err)
	require.Equal(t, int64(8), got.ID)
	require.True(t, got.IsReply())
}

func TestCreateCommentTopLevelOmitsParent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotContains(t, body, "parentId")
		_, _ = io.WriteString(w, `{"id":1}`)
	})
	_, err := c.CreateComment(context.Background(), "tok", "p1", "hello", nil)
	require.NoError(t, err)
}

func TestAuthEndpointsWithoutTokenSkipNetwork(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	ctx := context.Background()

	_, err := c.CreateComment(ctx, "", "p", "x", nil)
	require.True(t, apierr.IsAuthRequired(err))
	_, err = c.UpdateComment(ctx, "", 1, "x")
	require.True(t, apierr.IsAuthRequired(err))
	err = c.DeleteComment(ctx, "", 1)
	require.True(t, apierr.IsAuthRequired(err))
	_, err = c.ToggleReaction(ctx, "", models.TargetPost, "p", models.EmojiHeart)
	require.True(t, apierr.IsAuthRequired(err))
	_, err = c.FetchProfile(ctx, "")
	require.True(t, apierr.IsAuthRequired(err))

	require.Zero(t, calls.Load())
}

func TestUnauthorizedMapsToAuthRequired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"token expired"}`)
	})

	_, err := c.UpdateComment(context.Background(), "stale", 3, "x")
	require.Error(t, err)
	require.True(t, apierr.IsAuthRequired(err))
	require.True(t, apierr.IsUnauthorized(err))
	require.Contains(t, err.Error(), "token expired")
	require.Contains(t, err.Error(), "update comment 3")
}

func TestServerErrorCarriesStatusAndMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"content too long"}`)
	})

	_, err := c.UpdateComment(context.Background(), "tok", 3, "x")
	require.Equal(t, http.StatusUnprocessableEntity, apierr.StatusCode(err))
	require.Contains(t, err.Error(), "content too long")
	require.False(t, apierr.IsAuthRequired(err))
}

func TestReactionsEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			require.Equal(t, "/api/reactions/comment/42", r.URL.Path)
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"👍":{"count":2,"userReacted":true,"users":[{"id":1},{"id":2}]}}`)
		case http.MethodPost:
			require.Equal(t, "/api/reactions", r.URL.Path)
			var body toggleReactionBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, toggleReactionBody{TargetID: "42", TargetType: models.TargetComment, Emoji: models.EmojiRocket}, body)
			_, _ = io.WriteString(w, `{"🚀":{"count":1,"userReacted":true,"users":[{"id":1}]}}`)
		}
	})
	ctx := context.Background()

	sum, err := c.GetReactions(ctx, "tok", models.TargetComment, "42")
	require.NoError(t, err)
	require.Equal(t, 2, sum[models.EmojiThumbsUp].Count)

	sum, err = c.ToggleReaction(ctx, "tok", models.TargetComment, "42", models.EmojiRocket)
	require.NoError(t, err)
	require.True(t, sum[models.EmojiRocket].UserReacted)
}

func TestExchangeGitHubCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/github/token", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		var body exchangeBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, exchangeBody{Code: "c0de", State: "s1"}, body)
		_, _ = io.WriteString(w, `{"access_token":"new-token","user":{"id":5,"login":"octo"}}`)
	})

	resp, err := c.ExchangeGitHubCode(context.Background(), "c0de", "s1")
	require.NoError(t, err)
	require.Equal(t, "new-token", resp.AccessToken)
	require.Equal(t, "octo", resp.User.Login)
}

func TestExchangeGitHubCodeRequiresToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"user":{"id":5}}`)
	})
	_, err := c.ExchangeGitHubCode(context.Background(), "c", "s")
	require.ErrorContains(t, err, "no access_token")
}

func TestNetworkErrorIsClassified(t *testing.T) {
	cause := errors.New("connection refused")
	c, err := New("http://folio.invalid", WithHTTPClient(&http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, cause }),
	}))
	require.NoError(t, err)

	_, err = c.ListPosts(context.Background(), 1, 10)
	require.True(t, apierr.IsNetwork(err))
	require.ErrorIs(t, err, cause)
}

func TestDeleteIgnoresBody(t *testing.T) {
	c, err := New("http://folio.test", WithHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodDelete, req.Method)
			require.Equal(t, "/comments/9", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"success":true}`), nil
		}),
	}))
	require.NoError(t, err)
	require.NoError(t, c.DeleteComment(context.Background(), "tok", 9))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c, err := New("http://folio.test",
		WithRateLimit(0.001, 1),
		WithHTTPClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"posts":[],"total":0,"page":1,"limit":1}`), nil
		})}),
	)
	require.NoError(t, err)

	_, err = c.ListPosts(context.Background(), 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ListPosts(ctx, 2, 1)
	require.ErrorContains(t, err, "rate limiter")
}

func TestUpdateComment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/comments/42", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]any{"content": "edited"}, body)
		_, _ = io.WriteString(w, `{"id":42,"content":"edited","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-02T00:00:00Z"}`)
	})

	got, err := c.UpdateComment(context.Background(), "tok", 42, "edited")
	require.NoError(t, err)
	require.True(t, got.Edited())
}

func TestFetchProfileAndListPosts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/me":
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"id":7,"login":"octo","name":"Octo","avatarUrl":"https://a/7"}`)
		case "/api/posts":
			require.Equal(t, "1", r.URL.Query().Get("page"))
			_, _ = io.WriteString(w, `{"posts":[{"slug":"hello","title":"Hello","publishedAt":"2024-03-01T00:00:00Z"}],"total":1,"page":1,"limit":10}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	profile, err := c.FetchProfile(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, "octo", profile.Login)

	page, err := c.ListPosts(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.Equal(t, "hello", page.Posts[0].Slug)
	require.False(t, page.Posts[0].LastModified().IsZero())
}
