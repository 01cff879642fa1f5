package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anduleh/save-to-google-photos/internal/history"
)

func TestPrintHistoryTable(t *testing.T) {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

	records := []history.Record{
		{
			ID:          "a",
			SourceURL:   "https://example.test/cat.png",
			Size:        2_500_000,
			MediaItemID: "item-1",
			Status:      history.StatusSucceeded,
			StartedAt:   now.Add(-time.Hour),
			FinishedAt:  now.Add(-time.Hour + 1500*time.Millisecond),
		},
		{
			ID:         "b",
			SourceURL:  "https://example.test/" + strings.Repeat("x", 100),
			Status:     history.StatusFailed,
			Error:      "fetch: HTTP 404",
			StartedAt:  time.Date(2025, time.December, 24, 9, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2025, time.December, 24, 9, 0, 0, int(200*time.Millisecond), time.UTC),
		},
	}

	var buf bytes.Buffer
	printHistoryTable(&buf, records, now)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "WHEN"))
	assert.Contains(t, lines[1], "11:00:00")
	assert.Contains(t, lines[1], "2.5 MB")
	assert.Contains(t, lines[1], "1.5s")
	assert.True(t, strings.HasSuffix(lines[1], "item-1"))

	assert.Contains(t, lines[2], "Dec 24  2025")
	assert.Contains(t, lines[2], "200ms")
	assert.Contains(t, lines[2], "...")
	assert.True(t, strings.HasSuffix(lines[2], "fetch: HTTP 404"))
}
