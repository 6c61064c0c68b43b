// Package reconcile merges locally drafted mood entries into the backend once
// a session exists. The flow is an explicit state machine driven by a single
// event queue: identity events and user actions are enqueued and applied in
// order, never from overlapping watchers.
package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"moodtide/internal/identity"
	"moodtide/internal/mood"
)

// State names the reconciliation phases of the current draft.
type State string

const (
	// GuestUntracked: no draft, no session.
	GuestUntracked State = "guest_untracked"
	// GuestDrafted: draft saved locally, no session yet.
	GuestDrafted State = "guest_drafted"
	// PendingReason: signed in with a sentinel-reason draft; waiting for the
	// user to supply or skip the reason.
	PendingReason State = "pending_reason"
	// Committing: authenticated draft write in flight or failed awaiting a
	// manual resubmission.
	Committing State = "committing"
	// Committed: draft durably stored and cleared. Terminal per draft.
	Committed State = "committed"
	// Cancelled: user abandoned the draft; cleared without a store write.
	Cancelled State = "cancelled"
)

// NoticeKind tells the caller what the flow wants from the user next.
type NoticeKind string

const (
	NoticeSignInPrompt NoticeKind = "sign_in_prompt"
	NoticeReasonPrompt NoticeKind = "reason_prompt"
	NoticeCommitted    NoticeKind = "committed"
	NoticeCommitFailed NoticeKind = "commit_failed"
	NoticeCancelled    NoticeKind = "cancelled"
)

// Notice is emitted on transitions that need user attention.
type Notice struct {
	Kind  NoticeKind
	Entry mood.Entry
	Err   error
}

// DraftStore is the slice of the local store the flow needs.
type DraftStore interface {
	SaveDraft(entry mood.Entry) error
	Draft() (mood.Entry, bool)
	ClearDraft() error
	SaveGuestEntry(entry mood.Entry) error
	RemoveGuestEntry(day string) error
}

// EntryWriter commits entries to the backend. entries.Client satisfies it.
type EntryWriter interface {
	Upsert(ctx context.Context, entry mood.Entry) (mood.Entry, error)
}

type eventKind int

const (
	evMoodSelected eventKind = iota
	evReasonSubmitted
	evReasonCancelled
	evSignedIn
	evSignedOut
	evResubmit
)

type event struct {
	kind   eventKind
	ctx    context.Context
	value  mood.Value
	reason string
	at     time.Time
}

// Flow is the reconciliation state machine. All exported methods enqueue an
// event and drain the queue in order; they are safe for concurrent use.
type Flow struct {
	draft   DraftStore
	entries EntryWriter
	logger  *zap.Logger
	notify  func(Notice)

	mu       sync.Mutex
	queue    []event
	draining bool
	state    State
	authed   bool
	today    *mood.Entry
}

// New builds a flow over the local store and the entry client. notify may be
// nil. The initial state is recovered from any draft left by a previous run.
func New(draftStore DraftStore, entries EntryWriter, logger *zap.Logger, notify func(Notice)) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notify == nil {
		notify = func(Notice) {}
	}
	f := &Flow{
		draft:   draftStore,
		entries: entries,
		logger:  logger,
		notify:  notify,
		state:   GuestUntracked,
	}
	if _, ok := draftStore.Draft(); ok {
		f.state = GuestDrafted
	}
	return f
}

// State returns the current phase.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Today returns the entry committed during this run, if any.
func (f *Flow) Today() (mood.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.today == nil {
		return mood.Entry{}, false
	}
	return *f.today, true
}

// PendingDraft returns the draft awaiting reconciliation, if any.
func (f *Flow) PendingDraft() (mood.Entry, bool) {
	return f.draft.Draft()
}

// SelectMood records a mood picked at the given moment. Signed out, it saves
// a draft plus a guest history record and prompts for sign-in; signed in, it
// goes straight to the reason prompt or the commit.
func (f *Flow) SelectMood(ctx context.Context, value mood.Value, reason string, at time.Time) {
	f.dispatch(event{kind: evMoodSelected, ctx: ctx, value: value, reason: reason, at: at})
}

// SubmitReason supplies the free-text reason for the pending draft and
// commits it.
func (f *Flow) SubmitReason(ctx context.Context, reason string) {
	f.dispatch(event{kind: evReasonSubmitted, ctx: ctx, reason: reason})
}

// Cancel abandons the pending draft without any backend write.
func (f *Flow) Cancel() {
	f.dispatch(event{kind: evReasonCancelled, ctx: context.Background()})
}

// Resubmit retries a commit that previously failed.
func (f *Flow) Resubmit(ctx context.Context) {
	f.dispatch(event{kind: evResubmit, ctx: ctx})
}

// HandleIdentityEvent feeds auth state changes into the queue. Wire it via
// identity.Client.Subscribe.
func (f *Flow) HandleIdentityEvent(ctx context.Context, e identity.Event) {
	switch e.Type {
	case identity.EventSignedIn:
		f.dispatch(event{kind: evSignedIn, ctx: ctx})
	case identity.EventSignedOut:
		f.dispatch(event{kind: evSignedOut, ctx: ctx})
	}
	// Token refreshes and profile updates do not move the machine.
}

// dispatch appends the event and, unless a drain is already running on this
// or another goroutine, processes the queue to empty. Events enqueued from
// inside a transition are picked up by the running drain.
func (f *Flow) dispatch(e event) {
	f.mu.Lock()
	f.queue = append(f.queue, e)
	if f.draining {
		f.mu.Unlock()
		return
	}
	f.draining = true
	for len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		f.apply(next)
		f.mu.Lock()
	}
	f.draining = false
	f.mu.Unlock()
}

func (f *Flow) apply(e event) {
	switch e.kind {
	case evMoodSelected:
		f.onMoodSelected(e)
	case evReasonSubmitted:
		f.onReasonSubmitted(e)
	case evReasonCancelled:
		f.onCancelled()
	case evSignedIn:
		f.onSignedIn(e)
	case evSignedOut:
		f.onSignedOut()
	case evResubmit:
		f.onResubmit(e)
	}
}

func (f *Flow) onMoodSelected(e event) {
	entry := mood.NewEntry(e.value, e.reason, e.at)
	if err := f.draft.SaveDraft(entry); err != nil {
		f.logger.Debug("draft save failed", zap.Error(err))
		f.notify(Notice{Kind: NoticeCommitFailed, Entry: entry, Err: err})
		return
	}

	f.mu.Lock()
	authed := f.authed
	f.mu.Unlock()

	if !authed {
		// Guests see their own entry locally even if they never sign in.
		if err := f.draft.SaveGuestEntry(entry); err != nil {
			f.logger.Debug("guest history save failed", zap.Error(err))
		}
		f.setState(GuestDrafted)
		f.notify(Notice{Kind: NoticeSignInPrompt, Entry: entry})
		return
	}

	if entry.HasReason() {
		f.commit(e.ctx, entry)
		return
	}
	f.setState(PendingReason)
	f.notify(Notice{Kind: NoticeReasonPrompt, Entry: entry})
}

func (f *Flow) onSignedIn(e event) {
	f.mu.Lock()
	f.authed = true
	state := f.state
	f.mu.Unlock()

	draft, ok := f.draft.Draft()
	if !ok {
		// Duplicate sign-in events with nothing pending are no-ops.
		if state == GuestDrafted {
			f.setState(GuestUntracked)
		}
		return
	}
	if state == Committing || state == PendingReason {
		// A previous sign-in event already picked this draft up.
		return
	}

	if draft.HasReason() {
		f.commit(e.ctx, draft)
		return
	}
	f.setState(PendingReason)
	f.notify(Notice{Kind: NoticeReasonPrompt, Entry: draft})
}

func (f *Flow) onSignedOut() {
	f.mu.Lock()
	f.authed = false
	f.today = nil
	f.mu.Unlock()
	if _, ok := f.draft.Draft(); ok {
		f.setState(GuestDrafted)
	} else {
		f.setState(GuestUntracked)
	}
}

func (f *Flow) onReasonSubmitted(e event) {
	draft, ok := f.draft.Draft()
	if !ok {
		return
	}
	if e.reason != "" {
		draft.Reason = e.reason
		if err := f.draft.SaveDraft(draft); err != nil {
			f.logger.Debug("draft save failed", zap.Error(err))
		}
	}
	f.commit(e.ctx, draft)
}

func (f *Flow) onCancelled() {
	if _, ok := f.draft.Draft(); !ok {
		return
	}
	if err := f.draft.ClearDraft(); err != nil {
		f.logger.Debug("draft clear failed", zap.Error(err))
	}
	f.setState(Cancelled)
	f.notify(Notice{Kind: NoticeCancelled})
}

func (f *Flow) onResubmit(e event) {
	draft, ok := f.draft.Draft()
	if !ok {
		return
	}
	f.commit(e.ctx, draft)
}

// commit writes the draft through the entry client. Success clears the draft
// and the same-day guest duplicate; failure keeps the draft so the same
// transition can be re-triggered manually.
func (f *Flow) commit(ctx context.Context, entry mood.Entry) {
	f.setState(Committing)

	saved, err := f.entries.Upsert(ctx, entry)
	if err != nil {
		f.logger.Debug("commit failed", zap.String("day", entry.Day), zap.Error(err))
		f.notify(Notice{Kind: NoticeCommitFailed, Entry: entry, Err: err})
		return
	}

	if err := f.draft.ClearDraft(); err != nil {
		f.logger.Debug("draft clear failed", zap.Error(err))
	}
	if err := f.draft.RemoveGuestEntry(saved.Day); err != nil {
		f.logger.Debug("guest duplicate removal failed", zap.String("day", saved.Day), zap.Error(err))
	}

	f.mu.Lock()
	f.today = &saved
	f.state = Committed
	f.mu.Unlock()
	f.logger.Debug("transition", zap.String("state", string(Committed)), zap.String("day", saved.Day))
	f.notify(Notice{Kind: NoticeCommitted, Entry: saved})
}

func (f *Flow) setState(next State) {
	f.mu.Lock()
	prev := f.state
	f.state = next
	f.mu.Unlock()
	if prev != next {
		f.logger.Debug("transition", zap.String("from", string(prev)), zap.String("to", string(next)))
	}
}
