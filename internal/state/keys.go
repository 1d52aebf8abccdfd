package state

import (
	"fmt"
	"slices"

	"github.com/joescharf/codereview/internal/models"
)

// Key names one field of the Record that a stage may write.
type Key string

const (
	KeyInputLocator        Key = "input_locator"
	KeySourceKind          Key = "source_kind"
	KeyWorkingDirectory    Key = "working_directory"
	KeyFileInventory       Key = "file_inventory"
	KeySecurityFindings    Key = "security_findings"
	KeyPerformanceFindings Key = "performance_findings"
	KeyStyleFindings       Key = "style_findings"
	KeyWarnings            Key = "warnings"
	KeyTerminalError       Key = "terminal_error"
	KeyReport              Key = "report"
	KeyReportLocation      Key = "report_location"
)

// FindingsKey returns the key owning findings of category c.
func FindingsKey(c models.Category) Key {
	switch c {
	case models.CategorySecurity:
		return KeySecurityFindings
	case models.CategoryPerformance:
		return KeyPerformanceFindings
	case models.CategoryStyle:
		return KeyStyleFindings
	default:
		return Key(string(c) + "_findings")
	}
}

// appendOnly keys merge by appending instead of overwriting; several
// writers may share them.
func appendOnly(k Key) bool {
	return k == KeyWarnings
}

// Writer declares, ahead of execution, which keys a stage may write.
type Writer struct {
	Name string
	Keys []Key
}

// Allows reports whether w declared k.
func (w Writer) Allows(k Key) bool {
	return slices.Contains(w.Keys, k)
}

// CheckDisjoint verifies that concurrent writers only share append-only keys.
func CheckDisjoint(writers ...Writer) error {
	owner := make(map[Key]string)
	for _, w := range writers {
		for _, k := range w.Keys {
			if appendOnly(k) {
				continue
			}
			if prev, ok := owner[k]; ok && prev != w.Name {
				return fmt.Errorf("%w: %q declared by both %s and %s", ErrOverlappingKeys, k, prev, w.Name)
			}
			owner[k] = w.Name
		}
	}
	return nil
}

// Entry is one (key, value) pair of an Update.
type Entry struct {
	Key   Key
	Value any
}

// Update is an ordered partial update of the Record.
type Update struct {
	entries []Entry
}

// NewUpdate returns an empty update.
func NewUpdate() *Update {
	return &Update{}
}

// Set appends k=v and returns u for chaining.
func (u *Update) Set(k Key, v any) *Update {
	u.entries = append(u.entries, Entry{Key: k, Value: v})
	return u
}

// Warn appends warning messages to the update.
func (u *Update) Warn(msgs ...string) *Update {
	if len(msgs) == 0 {
		return u
	}
	return u.Set(KeyWarnings, slices.Clone(msgs))
}

// Entries returns the pairs in insertion order.
func (u *Update) Entries() []Entry {
	if u == nil {
		return nil
	}
	return u.entries
}

// Keys returns the distinct keys touched by u.
func (u *Update) Keys() []Key {
	var keys []Key
	for _, e := range u.Entries() {
		if !slices.Contains(keys, e.Key) {
			keys = append(keys, e.Key)
		}
	}
	return keys
}
