// Package draft persists client-side state on disk: the single-slot mood
// draft, the guest history kept before sign-in, and the saved session.
package draft

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/peterbourgon/diskv/v3"
	"go.uber.org/zap"

	"moodtide/internal/mood"
)

const (
	draftKey   = "draft-current"
	sessionKey = "session-current"
	historyNS  = "history"
)

// Store is the diskv-backed local state store.
type Store struct {
	d *diskv.Diskv
}

// Open creates a store rooted at basePath, creating it on first write.
func Open(basePath string) (*Store, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("draft: base path required")
	}
	return &Store{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: keyToPathTransform,
		InverseTransform:  pathToKeyTransform,
		CacheSizeMax:      1024 * 1024, // 1MB
	})}, nil
}

// SaveDraft stores the pending entry, replacing any previous draft.
func (s *Store) SaveDraft(entry mood.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("draft: marshal: %w", err)
	}
	return s.d.Write(draftKey, data)
}

// Draft returns the pending entry. A missing or unreadable draft reads as
// absent; corrupt local state must never wedge the client.
func (s *Store) Draft() (mood.Entry, bool) {
	data, err := s.d.Read(draftKey)
	if err != nil {
		return mood.Entry{}, false
	}
	var entry mood.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		zap.L().Debug("corrupt draft ignored", zap.Error(err))
		return mood.Entry{}, false
	}
	if err := entry.Validate(); err != nil {
		zap.L().Debug("invalid draft ignored", zap.Error(err))
		return mood.Entry{}, false
	}
	return entry, true
}

// ClearDraft removes the pending entry. Clearing an absent draft is a no-op.
func (s *Store) ClearDraft() error {
	err := s.d.Erase(draftKey)
	if err != nil && !s.d.Has(draftKey) {
		return nil
	}
	return err
}

// SaveGuestEntry upserts a locally-tracked entry by its day key.
func (s *Store) SaveGuestEntry(entry mood.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("draft: marshal: %w", err)
	}
	return s.d.Write(historyNS+"-"+entry.Day, data)
}

// GuestEntries returns the local history, newest day first. Unreadable
// records are skipped.
func (s *Store) GuestEntries() []mood.Entry {
	entries := make([]mood.Entry, 0)
	for key := range s.d.Keys(nil) {
		if !strings.HasPrefix(key, historyNS+"-") {
			continue
		}
		data, err := s.d.Read(key)
		if err != nil {
			continue
		}
		var entry mood.Entry
		if err := json.Unmarshal(data, &entry); err != nil || entry.Validate() != nil {
			zap.L().Debug("unreadable history record skipped", zap.String("key", key))
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Day > entries[j].Day
	})
	return entries
}

// RemoveGuestEntry deletes the local entry for one day.
func (s *Store) RemoveGuestEntry(day string) error {
	key := historyNS + "-" + day
	err := s.d.Erase(key)
	if err != nil && !s.d.Has(key) {
		return nil
	}
	return err
}

// ClearGuestEntries deletes the whole local history.
func (s *Store) ClearGuestEntries() error {
	for key := range s.d.Keys(nil) {
		if strings.HasPrefix(key, historyNS+"-") {
			if err := s.d.Erase(key); err != nil && s.d.Has(key) {
				return err
			}
		}
	}
	return nil
}

// SaveSession stores the serialized session.
func (s *Store) SaveSession(data []byte) error {
	return s.d.Write(sessionKey, data)
}

// Session returns the serialized session, if one is saved.
func (s *Store) Session() ([]byte, bool) {
	data, err := s.d.Read(sessionKey)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// ClearSession removes the saved session.
func (s *Store) ClearSession() error {
	err := s.d.Erase(sessionKey)
	if err != nil && !s.d.Has(sessionKey) {
		return nil
	}
	return err
}

func keyToPathTransform(s string) *diskv.PathKey {
	parts := strings.Split(s, "-")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	return fmt.Sprintf("%s-%s", strings.Join(pathKey.Path, "-"), pathKey.FileName)
}
