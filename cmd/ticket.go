// File: cmd/ticket.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmate-tools/deskmate-cli/internal/attachments"
	"github.com/deskmate-tools/deskmate-cli/internal/browser/session"
	"github.com/deskmate-tools/deskmate-cli/internal/helpdesk"
	"github.com/deskmate-tools/deskmate-cli/internal/observability"
	"github.com/deskmate-tools/deskmate-cli/internal/renderer"
	"github.com/deskmate-tools/deskmate-cli/internal/ticket"
)

var ticketDownload bool

var ticketCmd = &cobra.Command{
	Use:   "ticket <ticket-id>",
	Short: "Enhance the open ticket view with an attachment table and metadata.",
	Long: `Loads the full conversation of the given ticket in the attached browser,
synthesizes an attachment table above it, resolves the ticket's remote
metadata, and optionally runs the bulk attachment download.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		ticketID := args[0]

		sess, err := session.NewSession(cmd.Context(), cfg.Browser(), logger)
		if err != nil {
			return err
		}
		defer sess.Close()

		client := helpdesk.NewClient(cfg.Helpdesk(), logger)
		resolver := helpdesk.NewResolver(client, logger)
		rend := renderer.NewDOMRenderer(sess, logger)
		downloader := attachments.NewDownloader(client, rend, cfg.Download(), logger)
		enhancer := ticket.NewEnhancer(sess, rend, downloader, resolver, cfg.Poll().WidgetInterval, logger)

		if err := enhancer.Enhance(cmd.Context(), ticketID); err != nil {
			return fmt.Errorf("enhancing ticket %s: %w", ticketID, err)
		}

		if !ticketDownload {
			return nil
		}

		var info *helpdesk.TicketMetadata
		resolver.CheckTicket(cmd.Context(), ticketID, func(_ string, resolved *helpdesk.TicketMetadata) {
			info = resolved
		})
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		return enhancer.BulkDownload(cmd.Context(), ticketID, info)
	},
}

func init() {
	ticketCmd.Flags().BoolVar(&ticketDownload, "download", false, "bulk download the selected attachments as a .zip")
	rootCmd.AddCommand(ticketCmd)
}
