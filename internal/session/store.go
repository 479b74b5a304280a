package session

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/konsolai/bridge/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompStore)

// PersistedStore reads the desktop app's sessions.json. The file is owned
// and written by the desktop app; the bridge only ever reads it.
type PersistedStore struct {
	path string
}

func NewPersistedStore(path string) *PersistedStore {
	return &PersistedStore{path: path}
}

// Path returns the location of the sessions file.
func (s *PersistedStore) Path() string { return s.path }

// Read returns all persisted records keyed by session name. A missing file
// is an empty set; a malformed file is an empty set with a warning. Never
// fatal.
func (s *PersistedStore) Read() map[string]PersistedRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			storeLog.Warn("sessions_file_read_failed",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		return map[string]PersistedRecord{}
	}

	records, err := decodeRecords(data)
	if err != nil {
		storeLog.Warn("sessions_file_parse_failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return map[string]PersistedRecord{}
	}
	return records
}

// decodeRecords accepts both shapes the desktop app has written over time:
// a JSON array of records or an object keyed by session name.
func decodeRecords(data []byte) (map[string]PersistedRecord, error) {
	var list []PersistedRecord
	if err := json.Unmarshal(data, &list); err == nil {
		out := make(map[string]PersistedRecord, len(list))
		for _, rec := range list {
			if rec.Name != "" {
				out[rec.Name] = rec
			}
		}
		return out, nil
	}

	var byName map[string]PersistedRecord
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, err
	}
	for name, rec := range byName {
		if rec.Name == "" {
			rec.Name = name
			byName[name] = rec
		}
	}
	return byName, nil
}
