package mood

import (
	"testing"
	"time"
)

func TestDayKeyUsesLocalCalendarFields(t *testing.T) {
	// UTC+13: 00:30 local on Jan 2 is still 11:30 on Jan 1 in UTC. The key
	// must come from the local fields, not from the UTC instant.
	zone := time.FixedZone("UTC+13", 13*3600)
	at := time.Date(2025, 1, 2, 0, 30, 0, 0, zone)
	if got := DayKey(at); got != "2025-01-02" {
		t.Fatalf("expected 2025-01-02, got %s", got)
	}
	if utcDay := DayKey(at.UTC()); utcDay != "2025-01-01" {
		t.Fatalf("expected the UTC view to land on 2025-01-01, got %s", utcDay)
	}

	// The mirror case: 23:30 at UTC-11 is already the next day in UTC.
	west := time.Date(2025, 1, 1, 23, 30, 0, 0, time.FixedZone("UTC-11", -11*3600))
	if got := DayKey(west); got != "2025-01-01" {
		t.Fatalf("expected 2025-01-01, got %s", got)
	}
	if utcDay := DayKey(west.UTC()); utcDay != "2025-01-02" {
		t.Fatalf("expected the UTC view to land on 2025-01-02, got %s", utcDay)
	}
}

func TestDayKeyStableAcrossHoursOfSameLocalDay(t *testing.T) {
	zone := time.FixedZone("UTC-11", -11*3600)
	early := time.Date(2025, 6, 15, 0, 1, 0, 0, zone)
	late := time.Date(2025, 6, 15, 23, 59, 0, 0, zone)
	if DayKey(early) != DayKey(late) {
		t.Fatalf("expected same key, got %s and %s", DayKey(early), DayKey(late))
	}
}

func TestDayKeyChangesAtLocalMidnight(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	before := time.Date(2025, 3, 9, 23, 59, 0, 0, zone)
	after := time.Date(2025, 3, 10, 0, 1, 0, 0, zone)
	if DayKey(before) == DayKey(after) {
		t.Fatalf("expected different keys around midnight, both %s", DayKey(before))
	}
}

func TestNewEntryDefaultsSentinelReason(t *testing.T) {
	entry := NewEntry(Pleasant, "", time.Date(2025, 2, 2, 12, 0, 0, 0, time.Local))
	if entry.Reason != NoReason {
		t.Fatalf("expected sentinel reason, got %q", entry.Reason)
	}
	if entry.HasReason() {
		t.Fatalf("sentinel reason must not count as a real reason")
	}
	if entry.Label != "Pleasant" || entry.Color != "#778D5E" {
		t.Fatalf("unexpected denormalized fields: %q %q", entry.Label, entry.Color)
	}
}

func TestValidateRejectsOutOfRangeValue(t *testing.T) {
	entry := NewEntry(Value(4), "fine", time.Now())
	if err := entry.Validate(); err == nil {
		t.Fatalf("expected validation error for value 4")
	}
	entry = NewEntry(Neutral, "fine", time.Now())
	entry.Day = "not-a-day"
	if err := entry.Validate(); err == nil {
		t.Fatalf("expected validation error for malformed day key")
	}
}

func TestSummarizeDistributionAndAverage(t *testing.T) {
	entries := []Entry{
		{Value: Pleasant, Day: "2025-05-01"},
		{Value: Pleasant, Day: "2025-05-02"},
		{Value: Neutral, Day: "2025-05-03"},
		{Value: Unpleasant, Day: "2025-05-04"},
	}
	got := Summarize(entries, "2025-05-04")
	if got.Days != 4 {
		t.Fatalf("expected 4 days, got %d", got.Days)
	}
	if got.Average != 2.25 {
		t.Fatalf("expected average 2.25, got %v", got.Average)
	}
	if got.Distribution.Pleasant != 50 || got.Distribution.Neutral != 25 || got.Distribution.Unpleasant != 25 {
		t.Fatalf("unexpected distribution: %+v", got.Distribution)
	}
}

func TestSummarizeStreaks(t *testing.T) {
	entries := []Entry{
		{Value: Pleasant, Day: "2025-05-01"},
		{Value: Neutral, Day: "2025-05-02"},
		{Value: Pleasant, Day: "2025-05-03"},
		{Value: Unpleasant, Day: "2025-05-07"},
		{Value: Pleasant, Day: "2025-05-08"},
	}
	got := Summarize(entries, "2025-05-08")
	if got.LongestStreak != 3 {
		t.Fatalf("expected longest streak 3, got %d", got.LongestStreak)
	}
	if got.CurrentStreak != 2 {
		t.Fatalf("expected current streak 2, got %d", got.CurrentStreak)
	}

	// A streak ending before yesterday does not count as current.
	got = Summarize(entries[:3], "2025-05-08")
	if got.CurrentStreak != 0 {
		t.Fatalf("expected no current streak, got %d", got.CurrentStreak)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil, DayKey(time.Now()))
	if got.Days != 0 || got.Average != 0 || got.CurrentStreak != 0 {
		t.Fatalf("expected zero insights, got %+v", got)
	}
}
