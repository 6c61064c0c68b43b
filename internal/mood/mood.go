// Package mood holds the mood entry domain model shared by the API and the client.
package mood

import (
	"fmt"
	"time"
)

// Value is the three-level mood scale.
type Value int

const (
	Unpleasant Value = 1
	Neutral    Value = 2
	Pleasant   Value = 3
)

// NoReason marks an entry whose free-text explanation has not been supplied yet.
const NoReason = "No reason specified"

const dayLayout = "2006-01-02"

// Valid reports whether v is one of the three defined levels.
func (v Value) Valid() bool {
	return v >= Unpleasant && v <= Pleasant
}

func (v Value) Label() string {
	switch v {
	case Unpleasant:
		return "Unpleasant"
	case Neutral:
		return "Neutral"
	case Pleasant:
		return "Pleasant"
	}
	return ""
}

// Color returns the product palette color for the value.
func (v Value) Color() string {
	switch v {
	case Unpleasant:
		return "#DA7A59"
	case Neutral:
		return "#D9C69C"
	case Pleasant:
		return "#778D5E"
	}
	return ""
}

// Entry is one recorded mood for one calendar day.
type Entry struct {
	Value     Value     `json:"moodValue"`
	Label     string    `json:"moodLabel"`
	Color     string    `json:"moodColor"`
	Reason    string    `json:"reason"`
	Day       string    `json:"day"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// NewEntry builds an entry for the moment at, deriving the day key from at's
// local calendar fields and denormalizing label and color from value.
func NewEntry(value Value, reason string, at time.Time) Entry {
	if reason == "" {
		reason = NoReason
	}
	return Entry{
		Value:  value,
		Label:  value.Label(),
		Color:  value.Color(),
		Reason: reason,
		Day:    DayKey(at),
	}
}

// HasReason reports whether the entry carries a real reason rather than the
// sentinel.
func (e Entry) HasReason() bool {
	return e.Reason != "" && e.Reason != NoReason
}

// Validate checks the entry is shaped well enough to store.
func (e Entry) Validate() error {
	if !e.Value.Valid() {
		return fmt.Errorf("mood value must be 1, 2 or 3, got %d", e.Value)
	}
	if _, err := ParseDayKey(e.Day); err != nil {
		return err
	}
	return nil
}

// DayKey derives the timezone-agnostic calendar-date key for t. It reads t's
// local year, month and day directly; converting through UTC would shift a
// late-evening entry into the next day's bucket.
func DayKey(t time.Time) string {
	year, month, day := t.Date()
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

// ParseDayKey validates a day key and returns its calendar date at midnight UTC.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.Parse(dayLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q", key)
	}
	return t, nil
}

// AddDays shifts a day key by n calendar days.
func AddDays(key string, n int) (string, error) {
	t, err := ParseDayKey(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(dayLayout), nil
}
