package mood

import "sort"

// Distribution holds the share of entries per mood level, in whole percent.
type Distribution struct {
	Unpleasant int `json:"unpleasant"`
	Neutral    int `json:"neutral"`
	Pleasant   int `json:"pleasant"`
}

// Insights aggregates a set of entries for display.
type Insights struct {
	Days          int          `json:"days"`
	Average       float64      `json:"average"`
	Distribution  Distribution `json:"distribution"`
	CurrentStreak int          `json:"currentStreak"`
	LongestStreak int          `json:"longestStreak"`
}

// Summarize computes average, distribution and streaks over entries. today is
// the day key the current streak is anchored to; a streak is consecutive
// calendar days with an entry, counting back from today or yesterday.
func Summarize(entries []Entry, today string) Insights {
	out := Insights{Days: len(entries)}
	if len(entries) == 0 {
		return out
	}

	sum := 0
	counts := map[Value]int{}
	for _, e := range entries {
		sum += int(e.Value)
		counts[e.Value]++
	}
	out.Average = float64(sum) / float64(len(entries))
	out.Distribution = Distribution{
		Unpleasant: percent(counts[Unpleasant], len(entries)),
		Neutral:    percent(counts[Neutral], len(entries)),
		Pleasant:   percent(counts[Pleasant], len(entries)),
	}
	out.CurrentStreak, out.LongestStreak = streaks(entries, today)
	return out
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(part)/float64(total)*100 + 0.5)
}

func streaks(entries []Entry, today string) (current, longest int) {
	days := make([]string, 0, len(entries))
	seen := map[string]bool{}
	for _, e := range entries {
		if !seen[e.Day] {
			seen[e.Day] = true
			days = append(days, e.Day)
		}
	}
	sort.Strings(days)

	run := 0
	var prev string
	for _, day := range days {
		if prev != "" {
			if next, err := AddDays(prev, 1); err == nil && next == day {
				run++
			} else {
				run = 1
			}
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = day
	}

	// The current streak counts only if it reaches today or yesterday.
	if prev == today {
		current = run
	} else if yesterday, err := AddDays(today, -1); err == nil && prev == yesterday {
		current = run
	}
	return current, longest
}
