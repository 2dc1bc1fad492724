package shots

import (
	"errors"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Stephen Curry", "stephen-curry"},
		{"2023-24", "2023-24"},
		{"Regular Season", "regular-season"},
		{"  Luka  Dončić  ", "luka-don-i"},
		{"Shai Gilgeous-Alexander", "shai-gilgeous-alexander"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.expected {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestKeySlug(t *testing.T) {
	key := Key{Subject: "Stephen Curry", Period: "2023-24", PeriodType: RegularSeason}
	expected := "stephen-curry_2023-24_regular-season"
	if got := key.Slug(); got != expected {
		t.Errorf("Slug() = %q, want %q", got, expected)
	}

	// Equal keys produce equal slugs; distinct keys distinct slugs.
	other := Key{Subject: "Stephen Curry", Period: "2023-24", PeriodType: Playoffs}
	if other.Slug() == key.Slug() {
		t.Error("distinct keys produced the same slug")
	}
}

func TestFilterInBounds(t *testing.T) {
	rows := []Record{
		{X: 0, Y: 0, Made: true},
		{X: -250, Y: 470},
		{X: 251, Y: 100}, // past right bound
		{X: 0, Y: -1},    // behind baseline
		{X: 100, Y: 471}, // past half court window
		{X: 250, Y: 0, Made: true},
	}
	got := FilterInBounds(rows)
	if len(got) != 3 {
		t.Fatalf("FilterInBounds kept %d rows, want 3", len(got))
	}
	for _, r := range got {
		if !r.InBounds() {
			t.Errorf("out-of-bounds row survived filter: %+v", r)
		}
	}
}

func TestParsePeriodType(t *testing.T) {
	for _, valid := range []string{"Regular Season", "Playoffs", "Pre Season", "All Star"} {
		if _, err := ParsePeriodType(valid); err != nil {
			t.Errorf("ParsePeriodType(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParsePeriodType("Summer League"); err == nil {
		t.Error("expected error for unknown period type")
	}
}

func TestFetchErrorClassification(t *testing.T) {
	tests := []struct {
		kind      FetchErrorKind
		transient bool
	}{
		{ErrKindTimeout, true},
		{ErrKindRateLimited, true},
		{ErrKindNetwork, true},
		{ErrKindMalformed, false},
	}
	for _, tt := range tests {
		err := NewFetchError(tt.kind, errors.New("boom"))
		if IsTransient(err) != tt.transient {
			t.Errorf("IsTransient(%s) = %v, want %v", tt.kind, IsTransient(err), tt.transient)
		}
	}

	// Wrapped classified errors keep their classification.
	wrapped := NewFetchError(ErrKindMalformed, ErrUnknownSubject)
	if IsTransient(wrapped) {
		t.Error("malformed error should be permanent even when wrapping a sentinel")
	}
	if !errors.Is(wrapped, ErrUnknownSubject) {
		t.Error("errors.Is should see through FetchError")
	}

	// Unclassified errors default to transient.
	if !IsTransient(errors.New("connection reset")) {
		t.Error("plain errors should be treated as transient")
	}
}
