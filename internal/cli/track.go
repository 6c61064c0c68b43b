package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"moodtide/internal/mood"
)

func addTrack(topLevel *cobra.Command, e *env) {
	var reason string

	track := &cobra.Command{
		Use:   "track MOOD",
		Short: "Record today's mood (unpleasant, neutral or pleasant)",
		Example: `
moodctl track pleasant --reason "long walk in the sun"
moodctl track 1
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseMood(strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			e.flow.SelectMood(cmd.Context(), value, strings.TrimSpace(reason), time.Now())
			return nil
		},
	}
	track.Flags().StringVarP(&reason, "reason", "r", "", "why you feel this way")
	topLevel.AddCommand(track)

	topLevel.AddCommand(&cobra.Command{
		Use:   "reason TEXT",
		Short: "Add the missing reason to your pending entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := e.flow.PendingDraft(); !ok {
				return fmt.Errorf("no pending entry; track a mood first")
			}
			e.flow.SubmitReason(cmd.Context(), strings.Join(args, " "))
			return nil
		},
	})

	topLevel.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Discard the pending entry without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e.flow.Cancel()
			return nil
		},
	})

	topLevel.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Retry syncing a pending entry after a failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := e.flow.PendingDraft(); !ok {
				return fmt.Errorf("nothing pending to retry")
			}
			e.flow.Resubmit(cmd.Context())
			return nil
		},
	})

	topLevel.AddCommand(&cobra.Command{
		Use:   "today",
		Short: "Show today's entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := mood.DayKey(time.Now())
			if e.identity.Token() != "" {
				entry, err := e.entries.Get(cmd.Context(), day)
				if err == nil {
					printEntry(entry)
					return nil
				}
			}
			for _, entry := range e.store.GuestEntries() {
				if entry.Day == day {
					printEntry(entry)
					return nil
				}
			}
			if pending, ok := e.flow.PendingDraft(); ok && pending.Day == day {
				fmt.Printf("%s  %s (not synced yet)\n", pending.Day, pending.Label)
				return nil
			}
			fmt.Println("No entry for today yet. Record one with: moodctl track MOOD")
			return nil
		},
	})
}

func printEntry(entry mood.Entry) {
	if entry.HasReason() {
		fmt.Printf("%s  %-10s  %s\n", entry.Day, entry.Label, entry.Reason)
		return
	}
	fmt.Printf("%s  %s\n", entry.Day, entry.Label)
}
