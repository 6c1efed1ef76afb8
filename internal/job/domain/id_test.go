package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewJobIDRoundTrips(t *testing.T) {
	id := NewJobID("stripe-scrape", "user_42")
	raw := id.String()
	if !strings.HasPrefix(raw, "stripe-scrape:user_42:") {
		t.Fatalf("unexpected id %q", raw)
	}

	parsed, err := ParseJobID(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("expected %+v, got %+v", id, parsed)
	}
}

func TestNewJobIDIsUniquePerCall(t *testing.T) {
	a := NewJobID("stripe-scrape", "user_42")
	b := NewJobID("stripe-scrape", "user_42")
	if a.String() == b.String() {
		t.Fatalf("expected distinct ids, got %q twice", a.String())
	}
}

func TestParseJobIDAllowsSeparatorInOwner(t *testing.T) {
	raw := "stripe-scrape:org:7:1b4e28ba-2fa1-11d2-883f-0016d3cca427"
	parsed, err := ParseJobID(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.OwnerID != "org:7" {
		t.Fatalf("expected owner org:7, got %q", parsed.OwnerID)
	}
}

func TestParseJobIDRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"stripe-scrape",
		"stripe-scrape:user_42",
		":user_42:1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		"stripe-scrape::1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		"stripe-scrape:user_42:",
		"stripe-scrape:user_42:not-a-uuid",
	}
	for _, raw := range cases {
		if _, err := ParseJobID(raw); !errors.Is(err, ErrMalformedJobID) {
			t.Fatalf("%q: expected ErrMalformedJobID, got %v", raw, err)
		}
	}
}

func TestParseJobIDKeepsOwnerOfBadToken(t *testing.T) {
	parsed, err := ParseJobID("stripe-scrape:user_1:abc")
	if !errors.Is(err, ErrMalformedJobID) {
		t.Fatalf("expected ErrMalformedJobID, got %v", err)
	}
	if parsed.OwnerID != "user_1" || parsed.Kind != "stripe-scrape" || parsed.Token != "" {
		t.Fatalf("unexpected partial id %+v", parsed)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	if opts.Attempts != 1 {
		t.Fatalf("expected single attempt, got %d", opts.Attempts)
	}
	if opts.RemoveOnComplete.Age != time.Hour || opts.RemoveOnComplete.Count != 1000 {
		t.Fatalf("unexpected completed retention %+v", opts.RemoveOnComplete)
	}
	if opts.RemoveOnFail.Age != 24*time.Hour {
		t.Fatalf("unexpected failed retention %+v", opts.RemoveOnFail)
	}

	custom := Options{Attempts: 2, RemoveOnFail: Retention{Age: time.Minute}}.WithDefaults()
	if custom.Attempts != 2 || custom.RemoveOnFail.Age != time.Minute {
		t.Fatalf("custom values overwritten: %+v", custom)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateWaiting, StateActive, StateDelayed, StatePaused} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
