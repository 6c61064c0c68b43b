package store

import "time"

// UserProfile is the durable identity record. Rows are created by the email
// sign-up flow or upserted by the OAuth callback; the two may race, so profile
// creation is always an upsert keyed by id.
type UserProfile struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MoodEntry is one row of the mood_entries table. At most one row exists per
// (user, day); a later write for the same day replaces the earlier one.
type MoodEntry struct {
	UserID    string
	Day       string
	Value     int
	Label     string
	Color     string
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
