// File: cmd/article.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deskmate-tools/deskmate-cli/internal/browser/session"
	"github.com/deskmate-tools/deskmate-cli/internal/helpdesk"
	"github.com/deskmate-tools/deskmate-cli/internal/knowledge"
	"github.com/deskmate-tools/deskmate-cli/internal/observability"
	"github.com/deskmate-tools/deskmate-cli/internal/renderer"
)

var articleWatchEditor bool

var articleCmd = &cobra.Command{
	Use:   "article",
	Short: "Link the open knowledge base article back to its source tickets.",
	Long: `Resolves the article behind the current page, renders links to the
helpdesk tickets named in its labels, and optionally keeps the article
editor's toolbar extended with a code format button.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		sess, err := session.NewSession(cmd.Context(), cfg.Browser(), logger)
		if err != nil {
			return err
		}
		defer sess.Close()

		client := helpdesk.NewClient(cfg.Helpdesk(), logger)
		rend := renderer.NewDOMRenderer(sess, logger)
		linker := knowledge.NewLinker(client, rend, cfg.Helpdesk(), logger)

		path, err := sess.Location(cmd.Context())
		if err != nil {
			return err
		}
		linker.EnhanceArticle(cmd.Context(), path)

		if !articleWatchEditor {
			return nil
		}
		editor := knowledge.NewEditor(sess, cfg.Poll().WidgetInterval, logger)
		return editor.Run(cmd.Context())
	},
}

func init() {
	articleCmd.Flags().BoolVar(&articleWatchEditor, "watch-editor", false, "keep the article editor toolbar extended until interrupted")
	rootCmd.AddCommand(articleCmd)
}
