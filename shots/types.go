// Package shots defines the core data model for shot-location records:
// the fetch key identifying one dataset, the record itself, and the
// provenance tag carried alongside cached data.
package shots

import (
	"fmt"
	"strings"
)

// Court bounds in court-relative units (tenths of feet, basket at origin).
// Records outside these bounds are dropped at fetch time.
const (
	CourtXMin = -250.0
	CourtXMax = 250.0
	CourtYMin = 0.0
	CourtYMax = 470.0
)

// PeriodType distinguishes the portion of a season a dataset covers.
type PeriodType string

const (
	RegularSeason PeriodType = "Regular Season"
	Playoffs      PeriodType = "Playoffs"
	PreSeason     PeriodType = "Pre Season"
	AllStar       PeriodType = "All Star"
)

// ParsePeriodType validates a period-type string.
func ParsePeriodType(s string) (PeriodType, error) {
	switch PeriodType(s) {
	case RegularSeason, Playoffs, PreSeason, AllStar:
		return PeriodType(s), nil
	}
	return "", fmt.Errorf("unknown period type %q", s)
}

// Key identifies one cached dataset. Keys are compared by value and
// used directly as map keys.
type Key struct {
	Subject    string     `json:"subject"`
	Period     string     `json:"period"`
	PeriodType PeriodType `json:"period_type"`
}

// Slug returns a filesystem- and log-safe identifier for the key,
// e.g. "stephen-curry_2023-24_regular-season".
func (k Key) Slug() string {
	return fmt.Sprintf("%s_%s_%s", Slugify(k.Subject), Slugify(k.Period), Slugify(string(k.PeriodType)))
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Subject, k.Period, k.PeriodType)
}

// Slugify lowercases s and collapses anything non-alphanumeric into
// single dashes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// SourceTag records where a dataset came from.
type SourceTag string

const (
	SourceLive   SourceTag = "LIVE"
	SourceSeeded SourceTag = "SEEDED"
	SourceDemo   SourceTag = "DEMO"
)

// Record is a single shot attempt. Coordinates are court-relative.
// Feature fields are optional and absent in older cache files; the
// schema is additive, so newer readers tolerate their absence.
type Record struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Made bool    `json:"made"`

	PeriodNum int     `json:"period_num"`
	ClockSecs int     `json:"clock_secs"`
	Distance  float64 `json:"distance"`
	Zone      string  `json:"zone,omitempty"`

	// Feature fields added by the downstream scoring stage.
	MakeProbability *float64 `json:"make_probability,omitempty"`
}

// InBounds reports whether the record lies within the court's bounding
// region.
func (r Record) InBounds() bool {
	return r.X >= CourtXMin && r.X <= CourtXMax && r.Y >= CourtYMin && r.Y <= CourtYMax
}

// FilterInBounds returns the subset of rows with in-bounds coordinates.
func FilterInBounds(rows []Record) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if r.InBounds() {
			out = append(out, r)
		}
	}
	return out
}
