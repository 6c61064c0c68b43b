package app

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"moodtide/internal/authpw"
	"moodtide/internal/config"
	"moodtide/internal/mood"
	"moodtide/internal/store"
)

// fakeStore is an in-memory stand-in for the Postgres store. It backs both the
// app service and the password auth service in tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]store.UserProfile
	entries  map[string]store.MoodEntry
	refresh  map[string]string
	revoked  map[string]bool
	resets   map[string]string
	codes    map[string]bool
	pingFn   func(context.Context) error
	upsertFn func(context.Context, store.MoodEntry) (store.MoodEntry, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]store.UserProfile{},
		entries: map[string]store.MoodEntry{},
		refresh: map[string]string{},
		revoked: map[string]bool{},
		resets:  map[string]string{},
		codes:   map[string]bool{},
	}
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.UserProfile{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.UserProfile{}, sql.ErrNoRows
}

func (f *fakeStore) UpsertUserProfile(_ context.Context, user store.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.users[user.ID]; ok {
		if user.PasswordHash == "" {
			user.PasswordHash = existing.PasswordHash
		}
		if user.DisplayName == "" {
			user.DisplayName = existing.DisplayName
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = hash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) MarkOAuthCodeUsed(_ context.Context, codeHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes[codeHash] {
		return false, nil
	}
	f.codes[codeHash] = true
	return true, nil
}

func (f *fakeStore) UpsertMoodEntry(ctx context.Context, entry store.MoodEntry) (store.MoodEntry, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, entry)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := entry.UserID + ":" + entry.Day
	now := time.Now()
	if existing, ok := f.entries[key]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	f.entries[key] = entry
	return entry, nil
}

func (f *fakeStore) GetMoodEntry(_ context.Context, userID, day string) (store.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[userID+":"+day]
	if !ok {
		return store.MoodEntry{}, sql.ErrNoRows
	}
	return entry, nil
}

func (f *fakeStore) ListMoodEntriesRange(_ context.Context, userID, fromDay, toDay string) ([]store.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.MoodEntry
	for _, entry := range f.entries {
		if entry.UserID == userID && entry.Day >= fromDay && entry.Day <= toDay {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMoodEntries(_ context.Context, userID string) ([]store.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.MoodEntry
	for _, entry := range f.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteMoodEntry(_ context.Context, userID, day string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, userID+":"+day)
	return nil
}

func (f *fakeStore) DeleteMoodEntries(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.entries {
		if entry.UserID == userID {
			delete(f.entries, key)
		}
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.UserProfile, error) {
	f.mu.Lock()
	userID, ok := f.refresh[tokenHash]
	f.mu.Unlock()
	if !ok {
		return store.UserProfile{}, sql.ErrNoRows
	}
	return f.GetUserByID(ctx, userID)
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret:      "test-secret",
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       24 * time.Hour,
			OAuthErrorPath:   "/auth/error",
			OAuthSuccessPath: "/mood-tracking",
		},
		store:         fs,
		sessions:      fs,
		authpw:        authpw.NewService(fs),
		logger:        zap.NewNop(),
		oauthStateTTL: 10 * time.Minute,
		oauthStates:   make(map[string]oauthStateRecord),
	}
}

func TestSignUpIssuesSession(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	session, err := svc.SignUp(context.Background(), "avery@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if session.Email != "avery@example.com" {
		t.Fatalf("unexpected email: %s", session.Email)
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if parsed.UserID != session.UserID {
		t.Fatalf("token resolves to %s, want %s", parsed.UserID, session.UserID)
	}
}

func TestSignInAfterSignUp(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "avery@example.com", "correct horse"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "Avery@Example.com", "correct horse"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "avery@example.com", "wrong password"); err == nil {
		t.Fatal("expected sign-in with wrong password to fail")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "avery@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	next, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if next.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if next.Email != session.Email {
		t.Fatalf("refreshed session lost the email: %q", next.Email)
	}

	// The old token is single-use.
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected reuse of old refresh token to fail")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "avery@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if err := svc.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatal("expected revoked access token to be rejected")
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected revoked refresh token to be rejected")
	}
}

func TestUpsertEntryDefaultsSentinelReason(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	payload, err := svc.UpsertEntry(context.Background(), "usr_1", 3, "  ", "2025-06-01")
	if err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	entry := payload["entry"].(mood.Entry)
	if entry.Reason != mood.NoReason {
		t.Fatalf("expected sentinel reason, got %q", entry.Reason)
	}
	if entry.Label != "Pleasant" {
		t.Fatalf("expected denormalized label, got %q", entry.Label)
	}
}

func TestUpsertEntryReplacesSameDay(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	if _, err := svc.UpsertEntry(ctx, "usr_1", 1, "rough morning", "2025-06-01"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	if _, err := svc.UpsertEntry(ctx, "usr_1", 3, "turned around", "2025-06-01"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}

	payload, err := svc.GetEntry(ctx, "usr_1", "2025-06-01")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	entry := payload["entry"].(mood.Entry)
	if entry.Value != mood.Pleasant || entry.Reason != "turned around" {
		t.Fatalf("expected replacement, got %+v", entry)
	}

	listPayload, err := svc.ListEntries(ctx, "usr_1", "", "")
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if entries := listPayload["entries"].([]mood.Entry); len(entries) != 1 {
		t.Fatalf("expected a single entry for the day, got %d", len(entries))
	}
}

func TestUpsertEntryRejectsBadInput(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	if _, err := svc.UpsertEntry(ctx, "usr_1", 5, "", "2025-06-01"); err == nil {
		t.Fatal("expected out-of-range mood value to fail")
	}
	if _, err := svc.UpsertEntry(ctx, "usr_1", 2, "", "June 1st"); err == nil {
		t.Fatal("expected malformed day key to fail")
	}
}

func TestInsightsUsesProvidedToday(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	for day, value := range map[string]int{
		"2025-06-01": 3,
		"2025-06-02": 2,
		"2025-06-03": 3,
	} {
		if _, err := svc.UpsertEntry(ctx, "usr_1", value, "", day); err != nil {
			t.Fatalf("UpsertEntry() error = %v", err)
		}
	}

	payload, err := svc.Insights(ctx, "usr_1", "2025-06-03", "all")
	if err != nil {
		t.Fatalf("Insights() error = %v", err)
	}
	insights := payload["insights"].(mood.Insights)
	if insights.Days != 3 || insights.CurrentStreak != 3 {
		t.Fatalf("unexpected insights: %+v", insights)
	}

	if _, err := svc.Insights(ctx, "usr_1", "not-a-day", "all"); err == nil {
		t.Fatal("expected malformed today key to fail")
	}

	weekly, err := svc.Insights(ctx, "usr_1", "2025-06-10", "week")
	if err != nil {
		t.Fatalf("Insights(week) error = %v", err)
	}
	if got := weekly["insights"].(mood.Insights); got.Days != 0 {
		t.Fatalf("expected week window to exclude old entries, got %+v", got)
	}

	if _, err := svc.Insights(ctx, "usr_1", "2025-06-03", "fortnight"); err == nil {
		t.Fatal("expected unknown window to fail")
	}
}

func TestResetEntriesRemovesAll(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	for _, day := range []string{"2025-06-01", "2025-06-02"} {
		if _, err := svc.UpsertEntry(ctx, "usr_1", 2, "", day); err != nil {
			t.Fatalf("UpsertEntry() error = %v", err)
		}
	}
	if _, err := svc.UpsertEntry(ctx, "usr_2", 2, "", "2025-06-01"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}

	if _, err := svc.ResetEntries(ctx, "usr_1"); err != nil {
		t.Fatalf("ResetEntries() error = %v", err)
	}

	payload, err := svc.ListEntries(ctx, "usr_1", "", "")
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if entries := payload["entries"].([]mood.Entry); len(entries) != 0 {
		t.Fatalf("expected no entries after reset, got %d", len(entries))
	}

	otherPayload, err := svc.ListEntries(ctx, "usr_2", "", "")
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if entries := otherPayload["entries"].([]mood.Entry); len(entries) != 1 {
		t.Fatalf("reset must not touch other users, got %d entries", len(entries))
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "avery@example.com", "correct horse"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "avery@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known account")
	}

	if err := svc.ResetPassword(ctx, token, "battery staple"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "avery@example.com", "battery staple"); err != nil {
		t.Fatalf("SignIn() after reset error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "avery@example.com", "correct horse"); err == nil {
		t.Fatal("expected old password to stop working")
	}

	// Unknown accounts yield no token and no error.
	token, err = svc.RequestPasswordReset(ctx, "nobody@example.com")
	if err != nil || token != "" {
		t.Fatalf("expected silent empty token, got %q, %v", token, err)
	}
}
