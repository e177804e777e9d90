// Package idgen generates analysis run ids backed by nanoid.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix is prepended to every run id.
const RunPrefix = "run-"

// Alphabet is lower-case alphanumerics so ids are safe as S3 keys, NATS
// subject tokens and file names on case-insensitive filesystems.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters after the prefix.
const Length = 12

// NewRunID returns a new run id such as "run-k3v9x0q2m8ab".
func NewRunID() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return RunPrefix + id, nil
}

// IsRunID reports whether s has the shape of a run id.
func IsRunID(s string) bool {
	rest, ok := strings.CutPrefix(s, RunPrefix)
	if !ok || len(rest) != Length {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
