// Package search provides full-text search over mood entry reasons.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	Day       string `json:"day"`
	Snippet   string `json:"snippet"`
	MoodValue int    `json:"moodValue"`
	MoodLabel string `json:"moodLabel"`
	MoodColor string `json:"moodColor"`
}

// Query describes a search request. UserID scopes every query; entries are
// never searched across users.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// EntryRecord is the data indexed for one mood entry.
type EntryRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Day       string `json:"day"`
	Reason    string `json:"reason"`
	MoodValue int    `json:"moodValue"`
	MoodLabel string `json:"moodLabel"`
	MoodColor string `json:"moodColor"`
}

// RecordID builds the index document ID for a user's entry on a day.
func RecordID(userID, day string) string {
	return userID + ":" + day
}
