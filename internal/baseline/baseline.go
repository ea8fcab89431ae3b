// Package baseline records accepted improvement findings so repeat runs
// only surface new ones. Fingerprints are normalized, so an entry keeps
// matching when counts or quoted names inside the message change.
package baseline

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Baseline is a snapshot of accepted improvement findings
type Baseline struct {
	Version      string   `json:"version"`
	CreatedAt    string   `json:"created_at"`
	Fingerprints []string `json:"fingerprints"`
	index        map[string]bool // For fast lookup
}

// Create builds a baseline from an improvement list
func Create(improvements []string) *Baseline {
	fingerprints := make([]string, 0, len(improvements))
	index := make(map[string]bool)

	for _, item := range improvements {
		fp := fingerprint(item)
		if !index[fp] {
			fingerprints = append(fingerprints, fp)
			index[fp] = true
		}
	}

	// Sort for deterministic output
	sort.Strings(fingerprints)

	return &Baseline{
		Version:      "1.0",
		CreatedAt:    time.Now().Format(time.RFC3339),
		Fingerprints: fingerprints,
		index:        index,
	}
}

// Load reads a baseline from a JSON file
func Load(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline file: %w", err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse baseline file: %w", err)
	}

	// Build index for fast lookup
	b.index = make(map[string]bool, len(b.Fingerprints))
	for _, fp := range b.Fingerprints {
		b.index[fp] = true
	}

	return &b, nil
}

// Save writes the baseline to a JSON file
func (b *Baseline) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write baseline file: %w", err)
	}

	return nil
}

// IsAccepted checks whether an improvement finding is in the baseline
func (b *Baseline) IsAccepted(improvement string) bool {
	if b.index == nil {
		return false
	}
	return b.index[fingerprint(improvement)]
}

// Filter returns the improvements not covered by the baseline, preserving
// order.
func (b *Baseline) Filter(improvements []string) []string {
	if len(improvements) == 0 {
		return nil
	}
	var kept []string
	for _, item := range improvements {
		if !b.IsAccepted(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

// fingerprint creates a stable hash of an improvement finding.
// Messages are normalized first so value churn does not defeat matching.
func fingerprint(improvement string) string {
	hash := sha256.Sum256([]byte(normalizeMessage(improvement)))
	return fmt.Sprintf("%x", hash)
}

// normalizeMessage replaces volatile parts of a finding with placeholders
func normalizeMessage(msg string) string {
	// Replace double-quoted strings with placeholder
	msg = regexp.MustCompile(`"[^"]+"`).ReplaceAllString(msg, `"*"`)

	// Replace single-quoted strings with placeholder
	// Match only when surrounded by whitespace/start/end to avoid contractions
	msg = regexp.MustCompile(`(^|\s)'([^']+)'(\s|$)`).ReplaceAllString(msg, `$1'*'$3`)

	// Replace numbers with placeholder
	msg = regexp.MustCompile(`\b\d+(\.\d+)?\b`).ReplaceAllString(msg, `N`)

	// Normalize whitespace
	msg = strings.Join(strings.Fields(msg), " ")

	return msg
}
