// File: cmd/publish.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/htmlutil"
	"github.com/tistorylab/autopub/internal/observability"
	"github.com/tistorylab/autopub/internal/service"
)

// newPublishCmd creates the `publish` command. It either publishes an
// HTML file as-is or generates a post for a topic and publishes that.
func newPublishCmd() *cobra.Command {
	var (
		title string
		file  string
		topic string
		tags  []string
	)

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publishes a post to the configured blog",
		Long: `Publishes a post to the configured blog.

With --topic, the post is generated first and then published.
With --title and --file, the given HTML file is published as-is.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if topic == "" && (title == "" || file == "") {
				return fmt.Errorf("either --topic or both --title and --file are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := service.BuildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.InitSchema(ctx); err != nil {
				return fmt.Errorf("failed to initialize database schema: %w", err)
			}

			var result *schemas.PublishResult
			if topic != "" {
				result, err = app.Tasks.GenerateAndPublish(ctx, schemas.GenerateRequest{Topic: topic, Tags: tags})
			} else {
				var raw []byte
				raw, err = os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				content := &schemas.GeneratedContent{Title: title, HTML: htmlutil.CleanHTML(string(raw))}
				result, err = app.Publisher.Publish(ctx, content, tags)
			}
			if err != nil {
				return err
			}

			logger.Info("Published.", zap.String("title", result.Title), zap.String("url", result.TistoryURL))
			fmt.Fprintln(cmd.OutOrStdout(), result.TistoryURL)
			return nil
		},
	}

	publishCmd.Flags().StringVar(&title, "title", "", "post title (with --file)")
	publishCmd.Flags().StringVar(&file, "file", "", "path to an HTML file with the post body")
	publishCmd.Flags().StringVar(&topic, "topic", "", "topic to generate a post for")
	publishCmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated post tags")
	return publishCmd
}
