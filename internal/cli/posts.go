package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/folio-blog/folioctl/internal/posts"
)

// newPostsCommand creates the "posts" group.
func newPostsCommand(opts *Options) *cobra.Command {
	return newGroupCommand("posts", "Browse published posts",
		newPostsListCommand(opts),
	)
}

// newPostsListCommand creates "posts list".
func newPostsListCommand(opts *Options) *cobra.Command {
	var (
		page  int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published posts",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			if limit <= 0 {
				limit = rt.cfg.Sitemap.PostsPageSize
			}
			res, err := posts.NewClient(rt.api, rt.logger).List(cmd.Context(), page, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range res.Posts {
				line := fmt.Sprintf("%s  %s  %s", p.PublishedAt.Format("2006-01-02"), p.Slug, p.Title)
				if len(p.Tags) > 0 {
					line += "  [" + strings.Join(p.Tags, ", ") + "]"
				}
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(out, "page %d, %d of %d posts\n", res.Page, len(res.Posts), res.Total)
			return err
		}),
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page to list")
	cmd.Flags().IntVar(&limit, "limit", 0, "Posts per page (default sitemap.postsPageSize)")

	return cmd
}
