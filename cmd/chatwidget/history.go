package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"ChatWidget/internal/session"
	"ChatWidget/internal/storage"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List archived sessions or print one transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := storage.Open(a.cfg.Storage.DatabasePath, a.logger)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, store)

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				rec, err := store.LoadSession(cmd.Context(), args[0])
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("no archived session %s", args[0])
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Session %s (%s, started %s)\n\n", rec.ID, rec.Backend, rec.StartTime.Format("2006-01-02 15:04:05"))
				for _, msg := range rec.Messages {
					who := "Bot"
					if msg.Sender == session.SenderUser {
						who = "You"
					}
					fmt.Fprintf(out, "[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), who, msg.Text)
				}
				return nil
			}

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No archived sessions.")
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "STARTED", "MESSAGES", "BACKEND")
			for _, s := range sessions {
				t.Row(s.ID, s.StartTime.Format("2006-01-02 15:04"), strconv.Itoa(s.MessageCount), s.Backend)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to list")
	return cmd
}
