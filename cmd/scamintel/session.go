package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/scamintel/internal/observe"
	"github.com/hurttlocker/scamintel/internal/report"
)

var (
	sessionSend bool
	staleIdle   time.Duration
	staleLimit  int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage stored sessions",
	Long: `Inspect and manage sessions kept by a persistent store
(--session-store redis or sqlite). The memory store only lives as long as
the process, so these commands see nothing there.`,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), resolved, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		states, err := a.sessions.List(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(states) == 0 {
			fmt.Fprintln(w, "No sessions.")
			return nil
		}
		for _, st := range states {
			fmt.Fprintf(w, "%-36s  %-8s  turns=%-3d  values=%-3d  reported=%t\n",
				st.ID, st.Status, st.Turns, st.Intelligence.Len(), st.CallbackSent)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session with analytics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), resolved, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.sessions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), transcriptResult{
			Session:    st,
			AgentNotes: report.AgentNotes(st),
			Analytics:  report.BuildAnalytics(st, time.Now()),
		})
	},
}

var sessionFlagCmd = &cobra.Command{
	Use:   "flag <id>",
	Short: "Mark an active session as a confirmed scam",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), resolved, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.sessions.Flag(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s flagged (%d turns).\n", st.ID, st.Turns)
		return nil
	},
}

var sessionExpireCmd = &cobra.Command{
	Use:   "expire <id>",
	Short: "Close a session; later turns are rejected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), resolved, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.sessions.Expire(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s expired.\n", st.ID)
		return nil
	},
}

var sessionReportCmd = &cobra.Command{
	Use:   "report <id>",
	Short: "Print (or with --send, deliver) the final report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), resolved, logger, observe.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		if !sessionSend {
			st, err := a.sessions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report.BuildPayload(st, time.Now()))
		}
		payload, resp, err := a.reporter.Deliver(cmd.Context(), args[0], true)
		if err != nil {
			return fmt.Errorf("sending report: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{"payload": payload, "response": resp})
	},
}

var sessionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics over live sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), resolved, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.observe.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

var sessionStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List live sessions that stopped receiving turns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), resolved, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		stale, err := a.observe.GetStale(cmd.Context(), observe.StaleOpts{MaxIdle: staleIdle, Limit: staleLimit})
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(stale) == 0 {
			fmt.Fprintln(w, "No stale sessions.")
			return nil
		}
		for _, s := range stale {
			fmt.Fprintf(w, "%-36s  %-8s  turns=%-3d  idle=%s\n", s.ID, s.Status, s.Turns, s.Idle.Round(time.Second))
		}
		return nil
	},
}

func init() {
	sessionReportCmd.Flags().BoolVar(&sessionSend, "send", false, "Deliver to the callback endpoint")
	sessionStaleCmd.Flags().DurationVar(&staleIdle, "idle", 30*time.Minute, "Idle threshold")
	sessionStaleCmd.Flags().IntVar(&staleLimit, "limit", 50, "Maximum sessions to list")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionFlagCmd)
	sessionCmd.AddCommand(sessionExpireCmd)
	sessionCmd.AddCommand(sessionReportCmd)
	sessionCmd.AddCommand(sessionStatsCmd)
	sessionCmd.AddCommand(sessionStaleCmd)
}
