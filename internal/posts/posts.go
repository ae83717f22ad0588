// Package posts reads the public post listing.
package posts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/logging"
	"github.com/folio-blog/folioctl/internal/models"
)

// API is the subset of the folio API used for posts.
type API interface {
	ListPosts(ctx context.Context, page, limit int) (models.PostPage, error)
}

// Client lists posts.
type Client struct {
	api    API
	logger *slog.Logger
}

// NewClient constructs a Client. A nil logger discards output.
func NewClient(api API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{api: api, logger: logger}
}

// List returns one page of posts.
func (c *Client) List(ctx context.Context, page, limit int) (models.PostPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = config.DefaultPostsPageSize
	}
	return c.api.ListPosts(ctx, page, limit)
}

// All walks the listing page by page and returns every post in server order.
func (c *Client) All(ctx context.Context, limit int) ([]models.Post, error) {
	var out []models.Post
	for page := 1; ; page++ {
		res, err := c.List(ctx, page, limit)
		if err != nil {
			return nil, fmt.Errorf("list posts page %d: %w", page, err)
		}
		out = append(out, res.Posts...)
		c.logger.Debug("posts page fetched", "page", page, "received", len(res.Posts), "collected", len(out), "total", res.Total)

		if len(res.Posts) == 0 || len(out) >= res.Total {
			return out, nil
		}
		if res.Limit > 0 && len(res.Posts) < res.Limit {
			return out, nil
		}
	}
}
