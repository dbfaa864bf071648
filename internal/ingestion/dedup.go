package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Strategy selects how upload fingerprints are computed for duplicate
// detection.
type Strategy string

// Deduplication strategies. FileHash matches byte-identical uploads;
// Composite additionally matches re-scans of the same business document
// after header extraction.
const (
	StrategyFileHash  Strategy = "file_hash"
	StrategyComposite Strategy = "composite"
)

// Action is the configured response when an upload matches an existing
// invoice inside the deduplication window.
type Action string

// Duplicate resolution actions.
const (
	// ActionAutoIgnore discards the upload and records the match.
	ActionAutoIgnore Action = "auto_ignore"
	// ActionAutoMerge attaches the upload to the existing invoice without
	// reprocessing.
	ActionAutoMerge Action = "auto_merge"
	// ActionManualReview holds the job for an operator decision.
	ActionManualReview Action = "manual_review"
	// ActionReplaceExisting archives the existing invoice, deletes its stored
	// file, and processes the new upload in its place.
	ActionReplaceExisting Action = "replace_existing"
	// ActionArchiveExisting archives the existing invoice but keeps its
	// stored file, then processes the new upload.
	ActionArchiveExisting Action = "archive_existing"
)

// Resolver applies the configured deduplication policy. Matches older than
// the window are treated as distinct documents.
type Resolver struct {
	Strategy Strategy
	Action   Action
	Window   time.Duration
}

// NewResolver builds a Resolver from configuration values.
func NewResolver(strategy, action string, windowDays int) (Resolver, error) {
	s := Strategy(strategy)
	if s != StrategyFileHash && s != StrategyComposite {
		return Resolver{}, fmt.Errorf("%w: strategy %q", ErrInvalidStrategy, strategy)
	}

	a := Action(action)
	switch a {
	case ActionAutoIgnore, ActionAutoMerge, ActionManualReview, ActionReplaceExisting, ActionArchiveExisting:
	default:
		return Resolver{}, fmt.Errorf("%w: action %q", ErrInvalidAction, action)
	}

	return Resolver{
		Strategy: s,
		Action:   a,
		Window:   time.Duration(windowDays) * 24 * time.Hour,
	}, nil
}

// InWindow reports whether an existing invoice created at the given time
// still counts as a duplicate match.
func (r Resolver) InWindow(existingCreated, now time.Time) bool {
	if r.Window <= 0 {
		return true
	}
	return now.Sub(existingCreated) <= r.Window
}

// FileFingerprint is the hex SHA-256 of the raw upload bytes.
func FileFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CompositeFingerprint identifies a business document independent of its
// bytes: the same vendor, invoice number, and total resolve to the same
// fingerprint even across re-scans.
func CompositeFingerprint(vendorName, invoiceNumber string, totalCents int64) string {
	normalized := fmt.Sprintf(
		"%s|%s|%d",
		strings.ToLower(strings.TrimSpace(vendorName)),
		strings.ToLower(strings.TrimSpace(invoiceNumber)),
		totalCents,
	)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
