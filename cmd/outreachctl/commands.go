package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"outreach/composer"
	"outreach/models"
	"outreach/progress"
	"outreach/timeline"
	"outreach/utils"
)

var errInvalidID = errors.New("connection id must be a positive integer")

var (
	subject string
	body    string
	stageID uint
)

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(sendCmd)

	for _, cmd := range []*cobra.Command{draftCmd, sendCmd} {
		cmd.Flags().StringVar(&subject, "subject", "", "email subject")
		cmd.Flags().StringVar(&body, "body", "", "email body")
		cmd.Flags().UintVar(&stageID, "stage", 0, "stage id to update (defaults to the connection's current stage)")
	}
}

var showCmd = &cobra.Command{
	Use:   "show <connection-id>",
	Short: "Show progress and the visible stages of a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c := newClient()
		conn, err := c.GetConnection(cmd.Context(), id)
		if err != nil {
			return err
		}
		tl, err := c.GetTimeline(cmd.Context(), id)
		if err != nil {
			return err
		}
		renderView(cmd.OutOrStdout(), *conn, progress.BuildView(*conn, tl))
		return nil
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline <connection-id>",
	Short: "List every stage of a connection's timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		rec := timeline.NewReconciler(utils.NewLogger("timeline"))
		tl, err := rec.Refresh(cmd.Context(), newClient(), id)
		if err != nil {
			return err
		}
		renderTimeline(cmd.OutOrStdout(), tl)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <connection-id> <status>",
	Short: "Set a connection's email status",
	Long: `Set a connection's email status. Valid statuses:
  "Not Contacted", "First Impression", "Follow-up", "Response", "Meeting Scheduled"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		status := models.EmailStatus(args[1])
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", args[1])
		}
		conn, err := newClient().UpdateStatus(cmd.Context(), id, status)
		if err != nil {
			return err
		}
		res := progress.Calculate(*conn)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d%%)\n", conn.Name, conn.EmailStatus, res.Percent)
		return nil
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft <connection-id>",
	Short: "Edit and save the draft for a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, rec, id, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		if err := session.SaveDraft(cmd.Context(), false); err != nil {
			return err
		}
		if err := session.Close(cmd.Context(), composer.CloseUndecided); err != nil {
			return err
		}
		renderTimeline(cmd.OutOrStdout(), rec.Current(id))
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <connection-id>",
	Short: "Send the draft for a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, rec, id, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		if err := session.Send(cmd.Context()); err != nil {
			return err
		}
		renderTimeline(cmd.OutOrStdout(), rec.Current(id))
		return nil
	},
}

// openSession opens a composer for the connection and applies the
// --subject and --body flags on top of the stored draft.
func openSession(cmd *cobra.Command, arg string) (*composer.Session, *timeline.Reconciler, uint, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, nil, 0, err
	}

	ctx := cmd.Context()

	c := newClient()
	conn, err := c.GetConnection(ctx, id)
	if err != nil {
		return nil, nil, 0, err
	}

	out := cmd.OutOrStdout()
	rec := timeline.NewReconciler(utils.NewLogger("timeline"))
	opts := []composer.Option{
		composer.WithLogger(utils.NewLogger("composer")),
		composer.WithTimeline(rec),
		composer.WithListener(composer.Listener{
			OnDraftSaved: func(uint) { fmt.Fprintln(out, "Draft saved") },
			OnEmailSent:  func(uint) { fmt.Fprintln(out, "Email sent") },
		}),
	}
	if cmd.Flags().Changed("stage") {
		opts = append(opts, composer.WithStageID(stageID))
	}

	session := composer.NewSession(c, opts...)
	if err := session.Open(ctx, *conn, nil); err != nil {
		return nil, nil, 0, err
	}
	if cmd.Flags().Changed("subject") {
		if err := session.Edit(composer.FieldSubject, subject); err != nil {
			return nil, nil, 0, err
		}
	}
	if cmd.Flags().Changed("body") {
		if err := session.Edit(composer.FieldBody, body); err != nil {
			return nil, nil, 0, err
		}
	}
	return session, rec, id, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func renderView(w io.Writer, conn models.Connection, view progress.View) {
	bar := strings.Repeat("#", view.Progress.Percent/10) + strings.Repeat(".", 10-view.Progress.Percent/10)
	fmt.Fprintf(w, "%s <%s>\n", conn.Name, conn.Email)
	fmt.Fprintf(w, "Status:   %s\n", conn.EmailStatus)
	fmt.Fprintf(w, "Progress: [%s] %d%%\n", bar, view.Progress.Percent)

	if len(view.Stages) == 0 {
		fmt.Fprintln(w, "No timeline")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTAGE\tSTATUS")
	for _, s := range view.Stages {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.StageOrder, s.TypeLabel, s.Badge.Label)
	}
	tw.Flush()
}

func renderTimeline(w io.Writer, tl *models.Timeline) {
	if tl == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tORDER\tSTAGE\tSTATUS\tSENT\tRECEIVED")
	for _, s := range tl.Stages {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			s.ID, s.StageOrder,
			progress.StageTypeLabel(s.StageType),
			progress.StageBadge(s.StageStatus).Label,
			formatTime(s.SentAt), formatTime(s.ReceivedAt))
	}
	tw.Flush()
}
