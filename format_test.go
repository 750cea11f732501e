package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	t.Parallel()

	out := renderTable([]string{"FILE", "SIZE"}, [][]string{
		{"a.avi", "10"},
		{"short"},
	}, []columnAlignment{alignLeft, alignRight})

	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "a.avi")
	assert.Contains(t, out, "short")

	// Rounded style borders.
	assert.True(t, strings.HasPrefix(out, "╭"))
}

func TestRenderTable_NoHeaders(t *testing.T) {
	t.Parallel()

	assert.Empty(t, renderTable(nil, [][]string{{"x"}}, nil))
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", formatTime(time.Time{}))

	sameYear := time.Date(time.Now().Year(), time.March, 4, 15, 4, 0, 0, time.Local)
	assert.Equal(t, "Mar  4 15:04", formatTime(sameYear))

	old := time.Date(2001, time.December, 25, 8, 0, 0, 0, time.Local)
	assert.Equal(t, "Dec 25  2001", formatTime(old))
}

func TestDashIfEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", dashIfEmpty(""))
	assert.Equal(t, "x", dashIfEmpty("x"))
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"pending": 2}))
	assert.Equal(t, "{\n  \"pending\": 2\n}\n", buf.String())
}
