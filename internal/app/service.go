package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"moodtide/internal/auth"
	"moodtide/internal/authpw"
	"moodtide/internal/config"
	"moodtide/internal/email"
	"moodtide/internal/mood"
	"moodtide/internal/oauth"
	"moodtide/internal/search"
	"moodtide/internal/store"
	"moodtide/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.UserProfile, error)
	GetUserByEmail(context.Context, string) (store.UserProfile, error)
	UpsertUserProfile(context.Context, store.UserProfile) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	MarkOAuthCodeUsed(context.Context, string) (bool, error)
	UpsertMoodEntry(context.Context, store.MoodEntry) (store.MoodEntry, error)
	GetMoodEntry(context.Context, string, string) (store.MoodEntry, error)
	ListMoodEntriesRange(context.Context, string, string, string) ([]store.MoodEntry, error)
	ListMoodEntries(context.Context, string) ([]store.MoodEntry, error)
	DeleteMoodEntry(context.Context, string, string) error
	DeleteMoodEntries(context.Context, string) error
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Redis when configured, Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.UserProfile, error)
	RevokeRefreshSession(context.Context, string) error
}

type oauthStateRecord struct {
	provider  string
	expiresAt time.Time
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	oauth    *oauth.Service
	search   *search.Service
	email    *email.Service
	logger   *zap.Logger

	oauthStateTTL time.Duration
	stateMu       sync.Mutex
	oauthStates   map[string]oauthStateRecord
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, authSvc *authpw.Service, oauthSvc *oauth.Service, searchSvc *search.Service, emailSvc *email.Service, logger *zap.Logger) *Service {
	var sessionBackend sessionStore = dataStore
	if sessions != nil {
		sessionBackend = sessions
	}
	return &Service{
		cfg:           cfg,
		store:         dataStore,
		sessions:      sessionBackend,
		authpw:        authSvc,
		oauth:         oauthSvc,
		search:        searchSvc,
		email:         emailSvc,
		logger:        logger,
		oauthStateTTL: 10 * time.Minute,
		oauthStates:   make(map[string]oauthStateRecord),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SMTPConfigured reports whether outbound email is available. Handlers use it
// for the dev bypass that returns reset tokens inline.
func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// --- auth ---

func (s *Service) SignUp(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, emailAddr, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, emailAddr, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis backend stores only the user ID; reload the profile.
	if user.Email == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.UserProfile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// RequestPasswordReset creates a reset token and mails it if SMTP is
// configured. The token is also returned for the dev bypass.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, error) {
	if s.authpw == nil {
		return "", domainError(503, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	token, err := s.authpw.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if token != "" && s.SMTPConfigured() {
		resetURL := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/reset-password?token=" + token
		user, lookupErr := s.store.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(emailAddr)))
		name := "there"
		if lookupErr == nil {
			name = user.DisplayName
		}
		if sendErr := s.email.SendPasswordResetEmail(emailAddr, name, resetURL); sendErr != nil {
			s.logger.Warn("send password reset email", zap.Error(sendErr))
		}
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.authpw == nil {
		return domainError(503, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	return s.authpw.ResetPassword(ctx, token, newPassword)
}

// --- oauth ---

// BeginOAuth returns the provider consent URL and a single-use state token.
func (s *Service) BeginOAuth(provider string) (url, state string, err error) {
	if s.oauth == nil {
		return "", "", domainError(503, "AUTH_UNAVAILABLE", "OAuth not configured", nil)
	}
	state = util.NewID("st")
	url, err = s.oauth.AuthURL(provider, state)
	if err != nil {
		return "", "", err
	}

	s.stateMu.Lock()
	s.pruneStatesLocked()
	s.oauthStates[state] = oauthStateRecord{provider: provider, expiresAt: time.Now().Add(s.oauthStateTTL)}
	s.stateMu.Unlock()
	return url, state, nil
}

// OAuthCallback completes the redirect flow. The state must match a pending
// BeginOAuth call and the authorization code must not have been seen before;
// both are consumed on first use.
func (s *Service) OAuthCallback(ctx context.Context, provider, state, code string) (Session, error) {
	if s.oauth == nil {
		return Session{}, domainError(503, "AUTH_UNAVAILABLE", "OAuth not configured", nil)
	}
	if !s.consumeState(provider, state) {
		return Session{}, fmt.Errorf("%w: unknown or expired state", oauth.ErrExchangeFailed)
	}

	fresh, err := s.store.MarkOAuthCodeUsed(ctx, auth.HashToken(code))
	if err != nil {
		return Session{}, err
	}
	if !fresh {
		return Session{}, fmt.Errorf("%w: authorization code already used", oauth.ErrExchangeFailed)
	}

	token, err := s.oauth.Exchange(ctx, provider, code)
	if err != nil {
		return Session{}, err
	}
	social, err := s.oauth.FetchUser(ctx, provider, token)
	if err != nil {
		return Session{}, err
	}
	if social.Email == "" {
		return Session{}, fmt.Errorf("%w: provider returned no email", oauth.ErrExchangeFailed)
	}

	user, err := s.provisionSocialUser(ctx, social)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// provisionSocialUser finds or creates the profile for a social identity.
// Existing accounts are matched by email so password and OAuth sign-ins land
// on the same profile.
func (s *Service) provisionSocialUser(ctx context.Context, social oauth.SocialUser) (store.UserProfile, error) {
	emailAddr := strings.TrimSpace(strings.ToLower(social.Email))
	if existing, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil {
		return existing, nil
	} else if !store.IsNotFound(err) {
		return store.UserProfile{}, err
	}

	user := store.UserProfile{
		ID:          util.NewID("usr"),
		DisplayName: social.Name,
		Email:       emailAddr,
	}
	if user.DisplayName == "" {
		user.DisplayName = emailAddr
	}
	if err := s.store.UpsertUserProfile(ctx, user); err != nil {
		return store.UserProfile{}, err
	}
	return user, nil
}

func (s *Service) consumeState(provider, state string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.pruneStatesLocked()
	rec, ok := s.oauthStates[state]
	if !ok || rec.provider != provider {
		return false
	}
	delete(s.oauthStates, state)
	return true
}

func (s *Service) pruneStatesLocked() {
	now := time.Now()
	for state, rec := range s.oauthStates {
		if now.After(rec.expiresAt) {
			delete(s.oauthStates, state)
		}
	}
}

// --- mood entries ---

// UpsertEntry records or replaces the mood for one day. Committing the same
// entry twice is safe; the second write is a no-op replacement.
func (s *Service) UpsertEntry(ctx context.Context, userID string, value int, reason, day string) (map[string]any, error) {
	entry := mood.Entry{
		Value:  mood.Value(value),
		Label:  mood.Value(value).Label(),
		Color:  mood.Value(value).Color(),
		Reason: strings.TrimSpace(reason),
		Day:    strings.TrimSpace(day),
	}
	if entry.Reason == "" {
		entry.Reason = mood.NoReason
	}
	if err := entry.Validate(); err != nil {
		return nil, domainError(422, "VALIDATION_ERROR", err.Error(), nil)
	}

	saved, err := s.store.UpsertMoodEntry(ctx, store.MoodEntry{
		UserID: userID,
		Day:    entry.Day,
		Value:  int(entry.Value),
		Label:  entry.Label,
		Color:  entry.Color,
		Reason: entry.Reason,
	})
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexEntry(search.EntryRecord{
			ID:        search.RecordID(userID, saved.Day),
			UserID:    userID,
			Day:       saved.Day,
			Reason:    saved.Reason,
			MoodValue: saved.Value,
			MoodLabel: saved.Label,
			MoodColor: saved.Color,
		})
	}

	return map[string]any{"entry": entryFromStore(saved)}, nil
}

func (s *Service) GetEntry(ctx context.Context, userID, day string) (map[string]any, error) {
	entry, err := s.store.GetMoodEntry(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entry": entryFromStore(entry)}, nil
}

// ListEntries returns the user's entries, optionally bounded by day keys.
func (s *Service) ListEntries(ctx context.Context, userID, fromDay, toDay string) (map[string]any, error) {
	var (
		rows []store.MoodEntry
		err  error
	)
	if fromDay != "" || toDay != "" {
		if fromDay == "" {
			fromDay = "0000-01-01"
		}
		if toDay == "" {
			toDay = "9999-12-31"
		}
		rows, err = s.store.ListMoodEntriesRange(ctx, userID, fromDay, toDay)
	} else {
		rows, err = s.store.ListMoodEntries(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]mood.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromStore(row))
	}
	sortEntriesByDayDesc(entries)
	return map[string]any{"entries": entries}, nil
}

func (s *Service) DeleteEntry(ctx context.Context, userID, day string) (map[string]any, error) {
	if err := s.store.DeleteMoodEntry(ctx, userID, day); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.DeleteEntry(userID, day)
	}
	return map[string]any{"ok": true}, nil
}

// ResetEntries removes every entry the user has.
func (s *Service) ResetEntries(ctx context.Context, userID string) (map[string]any, error) {
	if err := s.store.DeleteMoodEntries(ctx, userID); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.DeleteUserEntries(userID)
	}
	return map[string]any{"ok": true}, nil
}

// Insights aggregates the user's history over a window of "week", "month" or
// "all" (the default). today anchors the window and the current streak; it
// defaults to the server's local day when the client does not send its own.
func (s *Service) Insights(ctx context.Context, userID, today, window string) (map[string]any, error) {
	if today == "" {
		today = mood.DayKey(time.Now())
	} else if _, err := mood.ParseDayKey(today); err != nil {
		return nil, domainError(422, "VALIDATION_ERROR", err.Error(), nil)
	}

	var (
		rows []store.MoodEntry
		err  error
	)
	switch window {
	case "", "all":
		rows, err = s.store.ListMoodEntries(ctx, userID)
	case "week", "month":
		span := 7
		if window == "month" {
			span = 30
		}
		from, addErr := mood.AddDays(today, -(span - 1))
		if addErr != nil {
			return nil, domainError(422, "VALIDATION_ERROR", addErr.Error(), nil)
		}
		rows, err = s.store.ListMoodEntriesRange(ctx, userID, from, today)
	default:
		return nil, domainError(422, "VALIDATION_ERROR", fmt.Sprintf("unknown window %q: use week, month or all", window), nil)
	}
	if err != nil {
		return nil, err
	}
	entries := make([]mood.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromStore(row))
	}
	return map[string]any{"insights": mood.Summarize(entries, today)}, nil
}

// Search matches the query against the user's entry reasons.
func (s *Service) Search(ctx context.Context, userID, query string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	return s.search.Search(search.Query{
		Text:   query,
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	}), nil
}

func entryFromStore(row store.MoodEntry) mood.Entry {
	return mood.Entry{
		Value:     mood.Value(row.Value),
		Label:     row.Label,
		Color:     row.Color,
		Reason:    row.Reason,
		Day:       row.Day,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func sortEntriesByDayDesc(entries []mood.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Day > entries[j].Day
	})
}
