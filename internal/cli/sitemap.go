package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/folio-blog/folioctl/internal/ghoutput"
	"github.com/folio-blog/folioctl/internal/posts"
	"github.com/folio-blog/folioctl/internal/sitemap"
)

// newSitemapCommand creates the "sitemap" subcommand that renders sitemap.xml.
func newSitemapCommand(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sitemap",
		Short: "Generate sitemap.xml from the published posts",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			if rt.cfg.SiteURL == "" {
				return fmt.Errorf("siteURL must be set to generate a sitemap")
			}
			if output == "" {
				output = rt.cfg.Sitemap.Output
			}

			all, err := posts.NewClient(rt.api, rt.logger).All(cmd.Context(), rt.cfg.Sitemap.PostsPageSize)
			if err != nil {
				return err
			}
			set, err := sitemap.Build(rt.cfg.SiteURL, rt.cfg.Sitemap.StaticPaths, all)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := sitemap.Write(&buf, set); err != nil {
				return err
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create output directory for %q: %w", output, err)
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write sitemap to %q: %w", output, err)
			}

			if err := ghoutput.Write(map[string]string{
				"sitemap_path": output,
				"sitemap_urls": strconv.Itoa(len(set.URLs)),
			}); err != nil {
				rt.logger.Warn("failed to publish step outputs", "error", err)
			}

			rt.logger.Info("sitemap written", "path", output, "urls", len(set.URLs), "posts", len(all))
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file, - for stdout (default sitemap.output)")

	return cmd
}
