package main

import (
	"strings"
	"testing"
	"time"
)

func TestShortIdentifier(t *testing.T) {
	cases := map[string]string{
		"a1b2c3d4-e5f6-7890-abcd-ef1234567890": "a1b2c3d4",
		"short": "short",
		"longidentifierwithnodash": "longiden",
		"-leading":                 "-leading",
	}
	for input, want := range cases {
		if got := ShortIdentifier(input); got != want {
			t.Errorf("ShortIdentifier(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewIdentifierUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewIdentifier()
		if seen[id] {
			t.Fatalf("duplicate identifier %s", id)
		}
		seen[id] = true
	}
}

func TestSanitizeChannelName(t *testing.T) {
	cases := map[string]string{
		"Alice":          "alice",
		"Bob Smith":      "bob-smith",
		"weird!!chars##": "weirdchars",
		"под_ником":      "_",
		"🔥🔥🔥":            "user",
		"":               "user",
		"under_score-ok": "under_score-ok",
	}
	for input, want := range cases {
		if got := SanitizeChannelName(input); got != want {
			t.Errorf("SanitizeChannelName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate long: %q", got)
	}
	if got := Truncate("hi", 8); got != "hi" {
		t.Errorf("Truncate short: %q", got)
	}
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Errorf("Truncate tiny: %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                              "∞",
		45 * time.Second:               "45s",
		3*time.Minute + 5*time.Second:  "3m 5s",
		2*time.Hour + 30*time.Minute:   "2h 30m",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestRenderStatName(t *testing.T) {
	if got := RenderStatName("👥 Members: {count}", "42"); got != "👥 Members: 42" {
		t.Errorf("RenderStatName: %q", got)
	}
	if got := RenderStatName("no placeholder", "42"); got != "no placeholder" {
		t.Errorf("RenderStatName without placeholder: %q", got)
	}
	if got := RenderStatName("{count} and {count}", "7"); !strings.Contains(got, "7 and 7") {
		t.Errorf("RenderStatName repeated: %q", got)
	}
}
