// Package idutil derives short, stable hash-based identifiers.
package idutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// InstallationID identifies this daemon installation for per-user data such
// as favorites. It is stable across restarts for the same host, OS user and
// state directory.
// Format: inst_XXXXXXXXXXXXXXXX
func InstallationID(stateDir string) string {
	host, _ := os.Hostname()
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if abs, err := filepath.Abs(stateDir); err == nil {
		stateDir = abs
	}
	return hashID("inst", fmt.Sprintf("%s:%s:%s", host, name, stateDir), 16)
}

// hashID creates {prefix}_{first n hex chars of SHA256(data)}.
func hashID(prefix, data string, n int) string {
	hash := sha256.Sum256([]byte(data))
	return prefix + "_" + hex.EncodeToString(hash[:])[:n]
}

// IsValidID checks if an ID matches the expected prefix format.
func IsValidID(id, prefix string) bool {
	if len(id) < len(prefix)+1 {
		return false
	}
	return id[:len(prefix)] == prefix && id[len(prefix)] == '_'
}
