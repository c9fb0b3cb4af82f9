// Package seqid formats the date-scoped sequential identifiers used for
// every entity in the system: "<PREFIX>-<YYYYMMDD>-<NNNN>". The sequence
// number itself comes from the repository's atomic counter; this package
// only owns the categories and the wire format.
package seqid

import (
	"fmt"
	"strings"
	"time"
)

const (
	CategoryProduct     = "PRD"
	CategoryVariant     = "VAR"
	CategoryTransaction = "TXN"
	CategoryEmployee    = "EMP"
	CategorySession     = "SES"
)

// DateStamp returns the UTC calendar date of t in YYYYMMDD form. Counters
// reset when this value changes between allocations.
func DateStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}

// Format renders an identifier. The sequence is zero-padded to a minimum of
// four digits; larger values widen without truncation.
func Format(category string, date string, value int64) string {
	return fmt.Sprintf("%s-%s-%04d", strings.ToUpper(category), date, value)
}
