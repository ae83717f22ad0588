package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/folio-blog/folioctl/internal/models"
)

// TokenResponse is returned by the backend OAuth code exchange.
type TokenResponse struct {
	AccessToken string          `json:"access_token"`
	User        *models.Profile `json:"user,omitempty"`
}

type createCommentBody struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parentId,omitempty"`
}

type updateCommentBody struct {
	Content string `json:"content"`
}

type toggleReactionBody struct {
	TargetID   string            `json:"targetId"`
	TargetType models.TargetType `json:"targetType"`
	Emoji      models.Emoji      `json:"emoji"`
}

type exchangeBody struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// ListComments fetches one page of top-level comments (replies embedded).
func (c *Client) ListComments(ctx context.Context, postID string, page, limit int) (models.CommentPage, error) {
	var out models.CommentPage
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts/" + url.PathEscape(postID) + "/comments",
		query:  pageQuery(page, limit),
	}, &out)
	if err != nil {
		return models.CommentPage{}, fmt.Errorf("list comments for post %q: %w", postID, err)
	}
	return out, nil
}

// CreateComment posts a new comment; parentID makes it a reply.
func (c *Client) CreateComment(ctx context.Context, token, postID, content string, parentID *int64) (models.Comment, error) {
	var out models.Comment
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/posts/" + url.PathEscape(postID) + "/comments",
		token:  token,
		auth:   true,
		body:   createCommentBody{Content: content, ParentID: parentID},
	}, &out)
	if err != nil {
		return models.Comment{}, fmt.Errorf("create comment on post %q: %w", postID, err)
	}
	return out, nil
}

// UpdateComment replaces the content of a comment and returns the server copy.
func (c *Client) UpdateComment(ctx context.Context, token string, commentID int64, content string) (models.Comment, error) {
	var out models.Comment
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/comments/" + strconv.FormatInt(commentID, 10),
		token:  token,
		auth:   true,
		body:   updateCommentBody{Content: content},
	}, &out)
	if err != nil {
		return models.Comment{}, fmt.Errorf("update comment %d: %w", commentID, err)
	}
	return out, nil
}

// DeleteComment deletes a comment.
func (c *Client) DeleteComment(ctx context.Context, token string, commentID int64) error {
	err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/comments/" + strconv.FormatInt(commentID, 10),
		token:  token,
		auth:   true,
	}, nil)
	if err != nil {
		return fmt.Errorf("delete comment %d: %w", commentID, err)
	}
	return nil
}

// GetReactions fetches the reaction summary of a target. The token is optional;
// when present the server fills userReacted for the caller.
func (c *Client) GetReactions(ctx context.Context, token string, targetType models.TargetType, targetID string) (models.ReactionSummary, error) {
	out := models.ReactionSummary{}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/reactions/" + url.PathEscape(string(targetType)) + "/" + url.PathEscape(targetID),
		token:  token,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get reactions for %s %q: %w", targetType, targetID, err)
	}
	return out, nil
}

// ToggleReaction flips the caller's reaction and returns the updated summary.
func (c *Client) ToggleReaction(ctx context.Context, token string, targetType models.TargetType, targetID string, emoji models.Emoji) (models.ReactionSummary, error) {
	out := models.ReactionSummary{}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/reactions",
		token:  token,
		auth:   true,
		body:   toggleReactionBody{TargetID: targetID, TargetType: targetType, Emoji: emoji},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("toggle %s on %s %q: %w", emoji, targetType, targetID, err)
	}
	return out, nil
}

// ExchangeGitHubCode trades an authorization code for an access token via the
// folio backend, which holds the OAuth client secret.
func (c *Client) ExchangeGitHubCode(ctx context.Context, code, state string) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/github/token",
		body:   exchangeBody{Code: code, State: state},
	}, &out)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("exchange authorization code: response has no access_token")
	}
	return out, nil
}

// FetchProfile returns the profile of the token's owner.
func (c *Client) FetchProfile(ctx context.Context, token string) (models.Profile, error) {
	var out models.Profile
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/me",
		token:  token,
		auth:   true,
	}, &out)
	if err != nil {
		return models.Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	return out, nil
}

// ListPosts fetches one page of published posts.
func (c *Client) ListPosts(ctx context.Context, page, limit int) (models.PostPage, error) {
	var out models.PostPage
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts",
		query:  pageQuery(page, limit),
	}, &out)
	if err != nil {
		return models.PostPage{}, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}
