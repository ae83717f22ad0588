// Package comments implements the per-post comment thread store: paginated
// top-level comments with one level of replies, kept in sync with the API.
package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/folio-blog/folioctl/internal/apierr"
	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/logging"
	"github.com/folio-blog/folioctl/internal/models"
	"github.com/folio-blog/folioctl/internal/reconcile"
	"github.com/folio-blog/folioctl/internal/session"
)

// API is the subset of the folio API used by a thread.
type API interface {
	ListComments(ctx context.Context, postID string, page, limit int) (models.CommentPage, error)
	CreateComment(ctx context.Context, token, postID, content string, parentID *int64) (models.Comment, error)
	UpdateComment(ctx context.Context, token string, commentID int64, content string) (models.Comment, error)
	DeleteComment(ctx context.Context, token string, commentID int64) error
}

// Status is the load state of a thread.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusLoadingMore
	StatusLoadError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusLoadingMore:
		return "loading-more"
	case StatusLoadError:
		return "load-error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// View is a deep copy of the thread state for rendering.
type View struct {
	PostID   string
	Comments []models.Comment
	Total    int
	Page     int
	Limit    int
	HasMore  bool
	Status   Status
	Err      error
}

// Options configures a Thread.
type Options struct {
	API     API
	Session session.Authenticator
	PostID  string
	// Limit is the page size; defaults to config.DefaultPageLimit.
	Limit int
	// MaxLength is the maximum content length in characters; defaults to config.DefaultMaxCommentLength.
	MaxLength int
	Logger    *slog.Logger
}

// Thread owns the comment list of one post.
type Thread struct {
	api       API
	session   session.Authenticator
	postID    string
	limit     int
	maxLength int
	logger    *slog.Logger
	seq       reconcile.Sequence

	mu       sync.Mutex
	comments []models.Comment
	total    int
	page     int
	loaded   int
	hasMore  bool
	status   Status
	err      error
}

// NewThread constructs an idle Thread.
func NewThread(opts Options) (*Thread, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("comment thread requires an API client")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("comment thread requires a session")
	}
	if strings.TrimSpace(opts.PostID) == "" {
		return nil, fmt.Errorf("comment thread requires a post ID")
	}
	if opts.Limit <= 0 {
		opts.Limit = config.DefaultPageLimit
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = config.DefaultMaxCommentLength
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Thread{
		api:       opts.API,
		session:   opts.Session,
		postID:    opts.PostID,
		limit:     opts.Limit,
		maxLength: opts.MaxLength,
		logger:    opts.Logger.With("post", opts.PostID),
		status:    StatusIdle,
	}, nil
}

// Snapshot returns a deep copy of the current state.
func (t *Thread) Snapshot() View {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Comment, len(t.comments))
	for i, c := range t.comments {
		out[i] = c.Clone()
	}
	return View{
		PostID:   t.postID,
		Comments: out,
		Total:    t.total,
		Page:     t.page,
		Limit:    t.limit,
		HasMore:  t.hasMore,
		Status:   t.status,
		Err:      t.err,
	}
}

// Load fetches the given page. Page 1 replaces the list; later pages append.
// Responses to requests superseded by a newer Load or Refresh are discarded.
func (t *Thread) Load(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}

	t.mu.Lock()
	ticket := t.seq.Next()
	if page == 1 {
		t.status = StatusLoading
	} else {
		t.status = StatusLoadingMore
	}
	t.err = nil
	t.mu.Unlock()

	res, err := t.api.ListComments(ctx, t.postID, page, t.limit)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seq.Current(ticket) {
		t.logger.Debug("dropping superseded comment page", "page", page)
		return nil
	}
	if err != nil {
		if page == 1 {
			t.status = StatusLoadError
		} else {
			// Keep what is already loaded so the caller can retry load-more.
			t.status = StatusLoaded
		}
		t.err = err
		return err
	}

	switch {
	case page == 1:
		t.comments = append([]models.Comment(nil), res.Comments...)
		t.loaded = len(res.Comments)
	case t.page == 0:
		// Jumping straight to a later page counts the skipped pages as seen.
		t.comments = append([]models.Comment(nil), res.Comments...)
		t.loaded = (page-1)*t.limit + len(res.Comments)
	default:
		t.comments = append(t.comments, res.Comments...)
		t.loaded += len(res.Comments)
	}
	t.total = res.Total
	t.page = page
	t.hasMore = len(res.Comments) == t.limit && t.loaded < res.Total
	t.status = StatusLoaded

	t.logger.Debug("comment page loaded",
		"page", page,
		"received", len(res.Comments),
		"loaded", t.loaded,
		"total", t.total,
		"hasMore", t.hasMore,
	)
	return nil
}

// LoadMore fetches the page after the last loaded one. It is a no-op when
// there is nothing more to load.
func (t *Thread) LoadMore(ctx context.Context) error {
	t.mu.Lock()
	next := t.page + 1
	more := t.hasMore && t.status == StatusLoaded
	t.mu.Unlock()

	if !more {
		return nil
	}
	return t.Load(ctx, next)
}

// Refresh discards all accumulated pages and reloads the first one.
func (t *Thread) Refresh(ctx context.Context) error {
	t.mu.Lock()
	t.comments = nil
	t.loaded = 0
	t.page = 0
	t.hasMore = false
	t.mu.Unlock()

	return t.Load(ctx, 1)
}

// Create posts a comment. Without a parent it is prepended to the list and
// counted in total; with a parent it is appended to that comment's replies.
func (t *Thread) Create(ctx context.Context, content string, parentID *int64) (models.Comment, error) {
	content, err := t.validate(content)
	if err != nil {
		return models.Comment{}, err
	}
	token, err := t.token()
	if err != nil {
		return models.Comment{}, err
	}

	return reconcile.Apply(ctx, reconcile.Mutation[models.Comment]{
		Remote: func(ctx context.Context) (models.Comment, error) {
			return t.api.CreateComment(ctx, token, t.postID, content, parentID)
		},
		Commit: func(created models.Comment) {
			t.mu.Lock()
			defer t.mu.Unlock()
			if parentID == nil {
				t.comments = append([]models.Comment{created}, t.comments...)
				t.total++
				return
			}
			for i := range t.comments {
				if t.comments[i].ID == *parentID {
					t.comments[i].Replies = append(t.comments[i].Replies, created)
					return
				}
			}
			t.logger.Debug("reply parent not loaded locally", "parent", *parentID)
		},
		Rollback: t.onFailure,
	})
}

// Update replaces a comment's content and stores the server's copy.
func (t *Thread) Update(ctx context.Context, commentID int64, content string) (models.Comment, error) {
	content, err := t.validate(content)
	if err != nil {
		return models.Comment{}, err
	}
	token, err := t.token()
	if err != nil {
		return models.Comment{}, err
	}

	return reconcile.Apply(ctx, reconcile.Mutation[models.Comment]{
		Remote: func(ctx context.Context) (models.Comment, error) {
			return t.api.UpdateComment(ctx, token, commentID, content)
		},
		Commit: func(updated models.Comment) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.replace(commentID, updated)
		},
		Rollback: t.onFailure,
	})
}

// Delete removes a comment from the top level and from every replies list.
// Total is decremented unless the comment was found only as a loaded reply.
func (t *Thread) Delete(ctx context.Context, commentID int64) error {
	token, err := t.token()
	if err != nil {
		return err
	}

	_, err = reconcile.Apply(ctx, reconcile.Mutation[struct{}]{
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, t.api.DeleteComment(ctx, token, commentID)
		},
		Commit: func(struct{}) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.remove(commentID)
		},
		Rollback: t.onFailure,
	})
	return err
}

// replace swaps the comment with the given ID, searching top level and replies.
// Callers must hold t.mu.
func (t *Thread) replace(id int64, updated models.Comment) {
	for i := range t.comments {
		if t.comments[i].ID == id {
			if updated.Replies == nil {
				updated.Replies = t.comments[i].Replies
			}
			t.comments[i] = updated
			return
		}
		for j := range t.comments[i].Replies {
			if t.comments[i].Replies[j].ID == id {
				t.comments[i].Replies[j] = updated
				return
			}
		}
	}
}

// remove filters id out of the tree. Callers must hold t.mu.
func (t *Thread) remove(id int64) {
	kept := t.comments[:0]
	removedTop, removedReply := false, false
	for _, c := range t.comments {
		if c.ID == id {
			removedTop = true
			continue
		}
		if len(c.Replies) > 0 {
			replies := make([]models.Comment, 0, len(c.Replies))
			for _, r := range c.Replies {
				if r.ID == id {
					removedReply = true
					continue
				}
				replies = append(replies, r)
			}
			c.Replies = replies
		}
		kept = append(kept, c)
	}
	t.comments = kept

	if (removedTop || !removedReply) && t.total > 0 {
		t.total--
	}
}

func (t *Thread) validate(content string) (string, error) {
	return ValidateContent(content, t.maxLength)
}

func (t *Thread) token() (string, error) {
	token := t.session.Token()
	if token == "" {
		return "", apierr.ErrAuthRequired
	}
	return token, nil
}

// onFailure ends the session when the server rejected the token. Local state
// is left untouched for every failed comment mutation.
func (t *Thread) onFailure(ctx context.Context, cause error) {
	if !apierr.IsAuthRequired(cause) {
		return
	}
	t.logger.Warn("session expired, logging out", "error", cause)
	if err := t.session.Logout(ctx); err != nil {
		t.logger.Error("failed to clear expired session", "error", err)
	}
}

// ValidateContent trims content and checks it is non-empty and at most
// maxLength characters long.
func ValidateContent(content string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", apierr.Validation("content", "comment must not be empty")
	}
	if n := utf8.RuneCountInString(trimmed); n > maxLength {
		return "", apierr.Validation("content", fmt.Sprintf("comment is %d characters, the limit is %d", n, maxLength))
	}
	return trimmed, nil
}
