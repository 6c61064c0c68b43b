package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"moodtide/internal/mood"
)

func addHistory(topLevel *cobra.Command, e *env) {
	var from, to string
	history := &cobra.Command{
		Use:   "history",
		Short: "List your mood entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []mood.Entry
			if e.identity.Token() != "" {
				var err error
				list, err = e.entries.List(cmd.Context(), from, to)
				if err != nil {
					return err
				}
			} else {
				list = e.store.GuestEntries()
				if len(list) > 0 {
					fmt.Println("(local guest history; sign in to sync)")
				}
			}
			if len(list) == 0 {
				fmt.Println("No entries yet.")
				return nil
			}
			for _, entry := range list {
				printEntry(entry)
			}
			return nil
		},
	}
	history.Flags().StringVar(&from, "from", "", "start day (YYYY-MM-DD)")
	history.Flags().StringVar(&to, "to", "", "end day (YYYY-MM-DD)")
	topLevel.AddCommand(history)

	var window string
	insightsCmd := &cobra.Command{
		Use:   "insights",
		Short: "Show averages, distribution and streaks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			insights, err := e.entries.Insights(cmd.Context(), mood.DayKey(time.Now()), window)
			if err != nil {
				return err
			}
			fmt.Printf("Days tracked:    %d\n", insights.Days)
			fmt.Printf("Average mood:    %.2f\n", insights.Average)
			fmt.Printf("Distribution:    %d%% unpleasant / %d%% neutral / %d%% pleasant\n",
				insights.Distribution.Unpleasant, insights.Distribution.Neutral, insights.Distribution.Pleasant)
			fmt.Printf("Current streak:  %d\n", insights.CurrentStreak)
			fmt.Printf("Longest streak:  %d\n", insights.LongestStreak)
			return nil
		},
	}
	insightsCmd.Flags().StringVar(&window, "window", "all", "time window: week, month or all")
	topLevel.AddCommand(insightsCmd)

	var limit, offset int
	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search your entry reasons",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			for _, arg := range args[1:] {
				query += " " + arg
			}
			resp, err := e.entries.Search(cmd.Context(), query, limit, offset)
			if err != nil {
				return err
			}
			if resp.Total == 0 {
				fmt.Printf("No entries match %q.\n", resp.Query)
				return nil
			}
			for _, result := range resp.Results {
				fmt.Printf("%s  %-10s  %s\n", result.Day, result.MoodLabel, result.Snippet)
			}
			fmt.Printf("%d match(es)\n", resp.Total)
			return nil
		},
	}
	search.Flags().IntVar(&limit, "limit", 20, "max results")
	search.Flags().IntVar(&offset, "offset", 0, "results to skip")
	topLevel.AddCommand(search)

	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete every entry in your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("this deletes all your entries; re-run with --yes to confirm")
			}
			if err := e.entries.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("All entries deleted.")
			return nil
		},
	}
	reset.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	topLevel.AddCommand(reset)
}
