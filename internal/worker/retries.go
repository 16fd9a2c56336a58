package worker

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/meshbus/meshbus/internal/constants"
)

type retryState struct {
	Count     int    `json:"count"`
	LastError string `json:"last_error,omitempty"`
	LastAt    string `json:"last_at,omitempty"`
}

func loadRetries(path string) retryState {
	data, err := os.ReadFile(path)
	if err != nil {
		return retryState{}
	}
	var rs retryState
	if err := json.Unmarshal(data, &rs); err != nil {
		return retryState{}
	}
	return rs
}

func saveRetries(path string, rs retryState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// exceededRetries reports whether rs.Count has already reached the
// configured maximum, meaning this attempt should dead-letter rather than
// run at all (spec.md §4.4: "On the third failure (counter reaches 3
// before this attempt)").
func exceededRetries(rs retryState) bool {
	return rs.Count >= constants.MaxRetries
}
