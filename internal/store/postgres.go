package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- user profiles ---

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (UserProfile, error) {
	var user UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM user_profiles
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return UserProfile{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (UserProfile, error) {
	var user UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM user_profiles
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return UserProfile{}, err
	}
	return user, nil
}

// UpsertUserProfile creates or refreshes a profile row. The email sign-up and
// OAuth callback flows can race to create the same profile, so this is an
// upsert keyed by id rather than a strict insert. An empty password hash never
// overwrites an existing one.
func (s *PostgresStore) UpsertUserProfile(ctx context.Context, user UserProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), user_profiles.display_name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), user_profiles.email),
			password_hash = COALESCE(NULLIF(EXCLUDED.password_hash, ''), user_profiles.password_hash),
			updated_at = NOW()
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_profiles SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// --- password resets ---

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// --- refresh sessions / revoked access tokens ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (UserProfile, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN user_profiles u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user UserProfile
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return UserProfile{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- oauth callback codes ---

// MarkOAuthCodeUsed records an authorization code the callback has consumed.
// It returns false when the code was seen before, which the caller must treat
// as an exchange failure: provider codes are single-use.
func (s *PostgresStore) MarkOAuthCodeUsed(ctx context.Context, codeHash string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_codes (code_hash) VALUES ($1)
		ON CONFLICT (code_hash) DO NOTHING
	`, codeHash)
	if err != nil {
		return false, fmt.Errorf("mark oauth code used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark oauth code used: %w", err)
	}
	return affected == 1, nil
}

// --- mood entries ---

// UpsertMoodEntry writes the entry for its day, replacing any existing row for
// the same (user, day) pair. Recommitting an already-stored entry is safe;
// the reconciliation flow relies on that after a crash between store write and
// draft clear.
func (s *PostgresStore) UpsertMoodEntry(ctx context.Context, entry MoodEntry) (MoodEntry, error) {
	var out MoodEntry
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mood_entries (user_id, day, mood_value, mood_label, mood_color, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, day) DO UPDATE SET
			mood_value=EXCLUDED.mood_value,
			mood_label=EXCLUDED.mood_label,
			mood_color=EXCLUDED.mood_color,
			reason=EXCLUDED.reason,
			updated_at=NOW()
		RETURNING user_id, day, mood_value, mood_label, mood_color, reason, created_at, updated_at
	`, entry.UserID, entry.Day, entry.Value, entry.Label, entry.Color, entry.Reason).Scan(
		&out.UserID, &out.Day, &out.Value, &out.Label, &out.Color, &out.Reason, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return MoodEntry{}, fmt.Errorf("upsert mood entry: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetMoodEntry(ctx context.Context, userID, day string) (MoodEntry, error) {
	var entry MoodEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, day, mood_value, mood_label, mood_color, reason, created_at, updated_at
		FROM mood_entries
		WHERE user_id=$1 AND day=$2
	`, userID, day).Scan(&entry.UserID, &entry.Day, &entry.Value, &entry.Label, &entry.Color, &entry.Reason, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return MoodEntry{}, err
	}
	return entry, nil
}

// ListMoodEntriesRange returns entries with fromDay <= day <= toDay. Callers
// sort; no ordering is promised beyond what the index happens to give.
func (s *PostgresStore) ListMoodEntriesRange(ctx context.Context, userID, fromDay, toDay string) ([]MoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, day, mood_value, mood_label, mood_color, reason, created_at, updated_at
		FROM mood_entries
		WHERE user_id=$1 AND day >= $2 AND day <= $3
	`, userID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("list mood entries: %w", err)
	}
	return scanMoodEntries(rows)
}

func (s *PostgresStore) ListMoodEntries(ctx context.Context, userID string) ([]MoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, day, mood_value, mood_label, mood_color, reason, created_at, updated_at
		FROM mood_entries
		WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list mood entries: %w", err)
	}
	return scanMoodEntries(rows)
}

func (s *PostgresStore) DeleteMoodEntry(ctx context.Context, userID, day string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mood_entries WHERE user_id=$1 AND day=$2`, userID, day)
	if err != nil {
		return fmt.Errorf("delete mood entry: %w", err)
	}
	return nil
}

// DeleteMoodEntries is the bulk reset testing affordance; entries are never
// soft-deleted otherwise.
func (s *PostgresStore) DeleteMoodEntries(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mood_entries WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete mood entries: %w", err)
	}
	return nil
}

func scanMoodEntries(rows *sql.Rows) ([]MoodEntry, error) {
	defer rows.Close()
	items := make([]MoodEntry, 0)
	for rows.Next() {
		var entry MoodEntry
		if err := rows.Scan(&entry.UserID, &entry.Day, &entry.Value, &entry.Label, &entry.Color, &entry.Reason, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mood entry: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood entries: %w", err)
	}
	return items, nil
}

// IsNotFound reports whether err means "no row", so callers can map it to a
// domain-level "none" instead of a server error.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
