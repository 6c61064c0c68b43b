// Package cli builds the moodctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"moodtide/internal/draft"
	"moodtide/internal/entries"
	"moodtide/internal/identity"
	"moodtide/internal/mood"
	"moodtide/internal/reconcile"
)

// env carries the wired client stack shared by every command.
type env struct {
	apiURL   string
	dataDir  string
	store    *draft.Store
	identity *identity.Client
	entries  *entries.Client
	flow     *reconcile.Flow
}

func New() *cobra.Command {
	e := &env{}

	cmd := &cobra.Command{
		Use:           "moodctl",
		Short:         "Track your daily mood from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&e.apiURL, "api", envOr("MOODTIDE_API_URL", "http://localhost:8686"), "base URL of the moodtide API")
	cmd.PersistentFlags().StringVar(&e.dataDir, "data-dir", envOr("MOODTIDE_HOME", ""), "directory for local state (default ~/.moodtide)")

	addTrack(cmd, e)
	addAuth(cmd, e)
	addHistory(cmd, e)

	return cmd
}

// setup wires the local store, the API clients and the reconciliation flow,
// restores any saved session, and lets the startup check kick off a pending
// commit. Reconciliation is idempotent, so triggering it both here and from
// the identity subscription is fine.
func (e *env) setup(ctx context.Context) error {
	if e.dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		e.dataDir = filepath.Join(home, ".moodtide")
	}

	store, err := draft.Open(e.dataDir)
	if err != nil {
		return err
	}
	e.store = store
	e.identity = identity.NewClient(e.apiURL)
	e.entries = entries.NewClient(e.apiURL, e.identity)
	e.flow = reconcile.New(store, e.entries, nil, printNotice)

	e.identity.Subscribe(func(event identity.Event) {
		e.persistSession(event)
		e.flow.HandleIdentityEvent(ctx, event)
	})

	if data, ok := store.Session(); ok {
		var session identity.Session
		if err := json.Unmarshal(data, &session); err == nil {
			e.identity.Restore(session)
			if ok, err := e.identity.CheckSession(ctx); err == nil && ok {
				e.flow.HandleIdentityEvent(ctx, identity.Event{Type: identity.EventSignedIn})
			}
		}
	}
	return nil
}

func (e *env) persistSession(event identity.Event) {
	switch event.Type {
	case identity.EventSignedOut:
		_ = e.store.ClearSession()
	default:
		if event.Session == nil {
			return
		}
		if data, err := json.Marshal(event.Session); err == nil {
			_ = e.store.SaveSession(data)
		}
	}
}

func printNotice(n reconcile.Notice) {
	switch n.Kind {
	case reconcile.NoticeSignInPrompt:
		fmt.Printf("Saved %s for %s locally. Sign in to sync it: moodctl signin EMAIL\n", n.Entry.Label, n.Entry.Day)
	case reconcile.NoticeReasonPrompt:
		fmt.Printf("You tracked %s for %s without a reason. Add one with: moodctl reason \"...\" (or moodctl cancel)\n", n.Entry.Label, n.Entry.Day)
	case reconcile.NoticeCommitted:
		fmt.Printf("Recorded %s for %s.\n", n.Entry.Label, n.Entry.Day)
	case reconcile.NoticeCommitFailed:
		fmt.Printf("Could not save %s for %s: %v\nYour entry is kept locally; retry with: moodctl retry\n", n.Entry.Label, n.Entry.Day, n.Err)
	case reconcile.NoticeCancelled:
		fmt.Println("Draft discarded.")
	}
}

func parseMood(arg string) (mood.Value, error) {
	switch arg {
	case "1", "unpleasant", "bad":
		return mood.Unpleasant, nil
	case "2", "neutral", "ok":
		return mood.Neutral, nil
	case "3", "pleasant", "good":
		return mood.Pleasant, nil
	}
	return 0, fmt.Errorf("unknown mood %q: use unpleasant, neutral or pleasant (or 1-3)", arg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
