package main

import (
	"strings"
	"testing"
	"time"

	"parley/internal/api"
)

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{0, "-"},
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tc := range cases {
		if got := formatSize(tc.bytes); got != tc.want {
			t.Errorf("formatSize(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID on short input = %q", got)
	}
}

func TestDeadLetterTableRendersFormattedColumns(t *testing.T) {
	entries := []api.DeadLetter{
		{
			ID:            "0123456789abcdef",
			AudioFileName: "memo.webm",
			ErrorKind:     "rate_limit",
			FileSizeBytes: 2048,
			RecordedAt:    time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
			RetryCount:    3,
		},
	}

	out := deadLetterTable(entries)
	for _, want := range []string{"Retries", "01234567", "memo.webm", "rate_limit", "2.0 KB", "3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Fatalf("table should truncate the entry id:\n%s", out)
	}
}
