package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"

	"smoothbdr/internal/queue"
	"smoothbdr/internal/supervisor"
)

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Supervisor", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Supervisor:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Health", statusOK, "healthy", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("awaiting_approval"); got != "Awaiting Approval" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := displayName("discovery"); got != "Discovery" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestSystemHealthKind(t *testing.T) {
	cases := map[supervisor.SystemHealth]statusKind{
		supervisor.SystemHealthy:    statusOK,
		supervisor.SystemBacklogged: statusWarn,
		supervisor.SystemCritical:   statusError,
		supervisor.SystemStalled:    statusError,
		supervisor.SystemUnknown:    statusError,
	}
	for health, want := range cases {
		if got := systemHealthKind(health); got != want {
			t.Fatalf("%s: got %v want %v", health, got, want)
		}
	}
}

func TestQueueStatsTableListsEveryQueue(t *testing.T) {
	table := queueStatsTable(map[string]queue.Stats{queue.Draft: {queue.StatusLowQuality: 4}})
	for _, name := range queue.Names() {
		if !strings.Contains(table, displayName(name)) {
			t.Fatalf("missing %s row in\n%s", name, table)
		}
	}
	if !strings.Contains(table, "Low Quality") {
		t.Fatalf("missing status column in\n%s", table)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
