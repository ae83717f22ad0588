package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/folio-blog/folioctl/internal/comments"
	"github.com/folio-blog/folioctl/internal/models"
)

// newCommentsCommand creates the "comments" group.
func newCommentsCommand(opts *Options) *cobra.Command {
	return newGroupCommand("comments", "Read and write post comments",
		newCommentsListCommand(opts),
		newCommentsAddCommand(opts),
		newCommentsEditCommand(opts),
		newCommentsDeleteCommand(opts),
	)
}

func newThread(rt *runtime, postID string) (*comments.Thread, error) {
	return comments.NewThread(comments.Options{
		API:       rt.api,
		Session:   rt.session,
		PostID:    postID,
		Limit:     rt.cfg.Comments.PageLimit,
		MaxLength: rt.cfg.Comments.MaxLength,
		Logger:    rt.logger,
	})
}

// newCommentsListCommand creates "comments list".
func newCommentsListCommand(opts *Options) *cobra.Command {
	var (
		postID string
		page   int
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the comments of a post",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			thread, err := newThread(rt, postID)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := thread.Load(ctx, page); err != nil {
				return err
			}
			for all && thread.Snapshot().HasMore {
				if err := thread.LoadMore(ctx); err != nil {
					return err
				}
			}

			view := thread.Snapshot()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%d of %d comments on %s\n", len(view.Comments), view.Total, view.PostID); err != nil {
				return err
			}
			for _, c := range view.Comments {
				if err := printComment(out, c, ""); err != nil {
					return err
				}
			}
			if view.HasMore {
				_, err := fmt.Fprintf(out, "\nMore comments available: --page %d or --all\n", view.Page+1)
				return err
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&postID, "post", "", "Post ID (slug)")
	cmd.Flags().IntVar(&page, "page", 1, "Page to load")
	cmd.Flags().BoolVar(&all, "all", false, "Load every remaining page")
	_ = cmd.MarkFlagRequired("post")

	return cmd
}

// newCommentsAddCommand creates "comments add".
func newCommentsAddCommand(opts *Options) *cobra.Command {
	var (
		postID   string
		parentID int64
		content  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Post a comment or a reply",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			thread, err := newThread(rt, postID)
			if err != nil {
				return err
			}
			var parent *int64
			if cmd.Flags().Changed("parent") {
				parent = &parentID
			}
			created, err := thread.Create(cmd.Context(), content, parent)
			if err != nil {
				return err
			}
			rt.logger.Info("comment created", "id", created.ID, "post", postID)
			return printComment(cmd.OutOrStdout(), created, "")
		}),
	}

	cmd.Flags().StringVar(&postID, "post", "", "Post ID (slug)")
	cmd.Flags().Int64Var(&parentID, "parent", 0, "Reply to this comment ID")
	cmd.Flags().StringVar(&content, "content", "", "Comment text")
	_ = cmd.MarkFlagRequired("post")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}

// newCommentsEditCommand creates "comments edit".
func newCommentsEditCommand(opts *Options) *cobra.Command {
	var (
		postID    string
		commentID int64
		content   string
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change the text of one of your comments",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			thread, err := newThread(rt, postID)
			if err != nil {
				return err
			}
			updated, err := thread.Update(cmd.Context(), commentID, content)
			if err != nil {
				return err
			}
			rt.logger.Info("comment updated", "id", updated.ID, "post", postID)
			return printComment(cmd.OutOrStdout(), updated, "")
		}),
	}

	cmd.Flags().StringVar(&postID, "post", "", "Post ID (slug)")
	cmd.Flags().Int64Var(&commentID, "id", 0, "Comment ID")
	cmd.Flags().StringVar(&content, "content", "", "New comment text")
	_ = cmd.MarkFlagRequired("post")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}

// newCommentsDeleteCommand creates "comments delete".
func newCommentsDeleteCommand(opts *Options) *cobra.Command {
	var (
		postID    string
		commentID int64
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one of your comments",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			thread, err := newThread(rt, postID)
			if err != nil {
				return err
			}
			if err := thread.Delete(cmd.Context(), commentID); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted comment %d\n", commentID)
			return err
		}),
	}

	cmd.Flags().StringVar(&postID, "post", "", "Post ID (slug)")
	cmd.Flags().Int64Var(&commentID, "id", 0, "Comment ID")
	_ = cmd.MarkFlagRequired("post")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// printComment writes c and its replies as an indented block.
func printComment(w io.Writer, c models.Comment, indent string) error {
	header := fmt.Sprintf("%s#%d %s", indent, c.ID, c.Author.DisplayName())
	if !c.CreatedAt.IsZero() {
		header += " " + c.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	if c.Edited() {
		header += " (edited)"
	}
	if n := c.Reactions.Total(); n > 0 {
		header += " " + formatReactions(c.Reactions)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	for _, line := range strings.Split(c.Content, "\n") {
		if _, err := fmt.Fprintf(w, "%s    %s\n", indent, line); err != nil {
			return err
		}
	}
	for _, r := range c.Replies {
		if err := printComment(w, r, indent+"    "); err != nil {
			return err
		}
	}
	return nil
}

// formatReactions renders a summary in display order, e.g. "👍 2  🚀 1*".
// A trailing star marks the caller's own reaction.
func formatReactions(s models.ReactionSummary) string {
	parts := make([]string, 0, len(s))
	for _, e := range models.Emojis {
		r, ok := s[e]
		if !ok || r.Count == 0 {
			continue
		}
		part := fmt.Sprintf("%s %d", e, r.Count)
		if r.UserReacted {
			part += "*"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "  ")
}
