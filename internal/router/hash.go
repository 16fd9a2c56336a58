package router

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/envelope"
	"github.com/meshbus/meshbus/internal/session"
)

// sha256Hex returns the lowercase hex SHA-256 of data.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// processedStateFile returns state/router/processed/<name>.sha256.
func processedStateFile(p session.Paths, name string) string {
	return filepath.Join(p.Router, constants.DirRouterProcessed, name+".sha256")
}

// alreadyProcessed reports whether the stored hash for name matches hash.
func alreadyProcessed(p session.Paths, name, hash string) bool {
	data, err := os.ReadFile(processedStateFile(p, name))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == hash
}

// markProcessed atomically records hash as the processed state for name.
func markProcessed(p session.Paths, name, hash string) error {
	return envelope.AtomicWrite(filepath.Join(p.Router, constants.DirRouterProcessed), name+".sha256", []byte(hash+"\n"))
}
