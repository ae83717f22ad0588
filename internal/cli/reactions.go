package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/folio-blog/folioctl/internal/models"
	"github.com/folio-blog/folioctl/internal/reactions"
)

// newReactionsCommand creates the "reactions" group.
func newReactionsCommand(opts *Options) *cobra.Command {
	return newGroupCommand("reactions", "Show and toggle emoji reactions",
		newReactionsShowCommand(opts),
		newReactionsToggleCommand(opts),
	)
}

type targetFlags struct {
	id         string
	targetType string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "target", "", "Post slug or comment ID")
	cmd.Flags().StringVar(&f.targetType, "type", string(models.TargetPost), "Target type (post or comment)")
	_ = cmd.MarkFlagRequired("target")
}

func (f *targetFlags) engine(rt *runtime) (*reactions.Engine, error) {
	tt, err := models.ParseTargetType(f.targetType)
	if err != nil {
		return nil, err
	}
	return reactions.NewEngine(reactions.Options{
		API:        rt.api,
		Session:    rt.session,
		TargetID:   f.id,
		TargetType: tt,
		Logger:     rt.logger,
	})
}

// newReactionsShowCommand creates "reactions show".
func newReactionsShowCommand(opts *Options) *cobra.Command {
	var target targetFlags

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the reactions on a post or comment",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			eng, err := target.engine(rt)
			if err != nil {
				return err
			}
			eng.Load(cmd.Context())
			return printSummary(cmd.OutOrStdout(), eng.Emojis(), eng.Summary())
		}),
	}
	target.register(cmd)

	return cmd
}

// newReactionsToggleCommand creates "reactions toggle".
func newReactionsToggleCommand(opts *Options) *cobra.Command {
	var (
		target targetFlags
		emoji  string
	)

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Add or remove your reaction",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			eng, err := target.engine(rt)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			eng.Load(ctx)
			summary, err := eng.Toggle(ctx, models.Emoji(emoji))
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), eng.Emojis(), summary)
		}),
	}
	target.register(cmd)
	cmd.Flags().StringVar(&emoji, "emoji", string(models.EmojiThumbsUp), "Emoji or alias (+1, -1, laugh, hooray, confused, heart, rocket, eyes)")

	return cmd
}

func printSummary(w io.Writer, emojis []models.Emoji, s models.ReactionSummary) error {
	if len(s) == 0 {
		_, err := fmt.Fprintln(w, "No reactions yet")
		return err
	}
	known := make(map[models.Emoji]bool, len(emojis))
	for _, e := range emojis {
		known[e] = true
	}
	order := append([]models.Emoji(nil), emojis...)
	var extra []models.Emoji
	for e := range s {
		if !known[e] {
			extra = append(extra, e)
		}
	}
	slices.Sort(extra)
	order = append(order, extra...)

	for _, e := range order {
		r, ok := s[e]
		if !ok {
			continue
		}
		mark := ""
		if r.UserReacted {
			mark = "  (you)"
		}
		if _, err := fmt.Fprintf(w, "%s %d%s\n", e, r.Count, mark); err != nil {
			return err
		}
	}
	return nil
}
