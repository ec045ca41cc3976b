// File: cmd/issue.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmate-tools/deskmate-cli/internal/browser/dom"
	"github.com/deskmate-tools/deskmate-cli/internal/browser/session"
	"github.com/deskmate-tools/deskmate-cli/internal/helpdesk"
	"github.com/deskmate-tools/deskmate-cli/internal/observability"
	"github.com/deskmate-tools/deskmate-cli/internal/tracker"
)

var issueCmd = &cobra.Command{
	Use:   "issue <ticket-id>",
	Short: "Pre-fill the tracker's Create Issue form from a helpdesk ticket.",
	Long: `Waits for the tracker's "Create Issue" modal in the attached browser,
selects the project, and fills summary, creation date, baseline version,
support offices and affects version from the ticket's metadata.`,
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

		var info *helpdesk.TicketMetadata
		resolver.CheckTicket(cmd.Context(), ticketID, func(_ string, resolved *helpdesk.TicketMetadata) {
			info = resolved
		})
		if info == nil || info.Ticket == nil {
			return fmt.Errorf("ticket %s: metadata unavailable", ticketID)
		}

		facts := tracker.TicketFacts{
			Subject:     info.Ticket.Subject,
			CreatedAt:   info.Ticket.CreatedAt,
			AccountCode: resolver.AccountCode(ticketID, info, nil),
			Tags:        info.Ticket.Tags,
		}
		if len(info.Organizations) == 1 {
			facts.SupportRegion = info.Organizations[0].OrganizationFields.SupportRegion
		}

		driver := dom.NewDriver(sess, logger, cfg.Poll().Interval)
		patcher := tracker.NewPatcher(cfg.Tracker(), logger)
		form := tracker.NewForm(driver, patcher, cfg.Tracker(), cfg.Poll(), logger)

		return form.Automate(cmd.Context(), facts)
	},
}

func init() {
	rootCmd.AddCommand(issueCmd)
}
