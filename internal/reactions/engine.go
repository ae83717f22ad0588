// Package reactions keeps the emoji reaction summary of a single post or
// comment in sync with the API, applying toggles optimistically.
package reactions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/folio-blog/folioctl/internal/apierr"
	"github.com/folio-blog/folioctl/internal/logging"
	"github.com/folio-blog/folioctl/internal/models"
	"github.com/folio-blog/folioctl/internal/reconcile"
	"github.com/folio-blog/folioctl/internal/session"
)

// API is the subset of the folio API used by an engine.
type API interface {
	GetReactions(ctx context.Context, token string, targetType models.TargetType, targetID string) (models.ReactionSummary, error)
	ToggleReaction(ctx context.Context, token string, targetType models.TargetType, targetID string, emoji models.Emoji) (models.ReactionSummary, error)
}

// Options configures an Engine.
type Options struct {
	API        API
	Session    session.Authenticator
	TargetID   string
	TargetType models.TargetType
	Logger     *slog.Logger
}

// Engine owns the reaction summary of one target.
type Engine struct {
	api        API
	session    session.Authenticator
	targetID   string
	targetType models.TargetType
	logger     *slog.Logger
	seq        reconcile.Sequence

	mu      sync.Mutex
	summary models.ReactionSummary
}

// NewEngine constructs an Engine with an empty summary.
func NewEngine(opts Options) (*Engine, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("reaction engine requires an API client")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("reaction engine requires a session")
	}
	if strings.TrimSpace(opts.TargetID) == "" {
		return nil, fmt.Errorf("reaction engine requires a target ID")
	}
	if _, err := models.ParseTargetType(string(opts.TargetType)); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Engine{
		api:        opts.API,
		session:    opts.Session,
		targetID:   opts.TargetID,
		targetType: opts.TargetType,
		logger:     opts.Logger.With("target", opts.TargetID, "targetType", string(opts.TargetType)),
		summary:    models.ReactionSummary{},
	}, nil
}

// Emojis lists the supported reactions in display order.
func (e *Engine) Emojis() []models.Emoji {
	return append([]models.Emoji(nil), models.Emojis...)
}

// Summary returns a deep copy of the current summary.
func (e *Engine) Summary() models.ReactionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary.Clone()
}

// Load replaces the summary with the server's. Failures, including 404 for a
// target nobody reacted to yet, leave an empty summary and are not returned.
func (e *Engine) Load(ctx context.Context) {
	ticket := e.seq.Next()

	summary, err := e.api.GetReactions(ctx, e.session.Token(), e.targetType, e.targetID)
	if err != nil {
		e.logger.Debug("reaction fetch failed, showing none", "error", err)
		summary = models.ReactionSummary{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.seq.Current(ticket) {
		e.logger.Debug("dropping superseded reaction summary")
		return
	}
	e.summary = summary.Clone()
}

// Toggle flips the signed-in user's reaction. The local summary changes
// before the request is sent; it is replaced by the server's summary on
// success and reloaded on failure.
func (e *Engine) Toggle(ctx context.Context, emoji models.Emoji) (models.ReactionSummary, error) {
	parsed, ok := models.ParseEmoji(string(emoji))
	if !ok {
		return nil, apierr.Validation("emoji", fmt.Sprintf("%q is not a supported reaction", string(emoji)))
	}
	emoji = parsed
	token := e.session.Token()
	profile, signedIn := e.session.Profile()
	if token == "" || !signedIn {
		return nil, apierr.ErrAuthRequired
	}
	me := profile.Ref()

	return reconcile.Apply(ctx, reconcile.Mutation[models.ReactionSummary]{
		Local: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			// Loads issued before the toggle must not overwrite it.
			e.seq.Next()
			e.summary = flip(e.summary, emoji, me)
		},
		Remote: func(ctx context.Context) (models.ReactionSummary, error) {
			return e.api.ToggleReaction(ctx, token, e.targetType, e.targetID, emoji)
		},
		Commit: func(server models.ReactionSummary) {
			e.mu.Lock()
			defer e.mu.Unlock()
			// Supersede any Load still in flight.
			e.seq.Next()
			e.summary = server.Clone()
		},
		Rollback: func(ctx context.Context, cause error) {
			e.logger.Warn("reaction toggle failed, reloading", "emoji", string(emoji), "error", cause)
			if apierr.IsAuthRequired(cause) {
				if err := e.session.Logout(ctx); err != nil {
					e.logger.Error("failed to clear expired session", "error", err)
				}
			}
			e.Load(context.WithoutCancel(ctx))
		},
	})
}

// flip applies the caller's toggle to a copy of s.
func flip(s models.ReactionSummary, emoji models.Emoji, me models.UserRef) models.ReactionSummary {
	out := s.Clone()
	r := out[emoji]

	if r.UserReacted {
		r.Count--
		if r.Count < 0 {
			r.Count = 0
		}
		r.UserReacted = false
		users := r.Users[:0]
		for _, u := range r.Users {
			if u.ID != me.ID {
				users = append(users, u)
			}
		}
		r.Users = users
		if r.Count == 0 {
			delete(out, emoji)
			return out
		}
		out[emoji] = r
		return out
	}

	r.Count++
	r.UserReacted = true
	r.Users = append(r.Users, me)
	out[emoji] = r
	return out
}
