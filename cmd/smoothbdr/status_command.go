package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/supervisor"
)

type statusReport struct {
	Supervisor supervisorState     `json:"supervisor"`
	Snapshot   supervisor.Snapshot `json:"snapshot"`
}

type supervisorState struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline health, queue depths and worker heartbeats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				report := collectStatus(cmd, cfg, store)
				if asJSON {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				renderStatus(out, report, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func collectStatus(cmd *cobra.Command, cfg *config.Config, store *queue.Store) statusReport {
	var state supervisorState
	pid, err := supervisor.RunningPID(cfg)
	if err != nil {
		state.Error = err.Error()
	}
	state.Running = pid > 0
	state.PID = pid
	return statusReport{
		Supervisor: state,
		Snapshot:   supervisor.Collect(cmd.Context(), store, supervisor.ThresholdsFromConfig(cfg)),
	}
}

func renderStatus(out io.Writer, report statusReport, colorize bool) {
	snap := report.Snapshot

	fmt.Fprintln(out, renderSectionHeader("Pipeline", colorize))
	switch {
	case report.Supervisor.Error != "":
		fmt.Fprintln(out, renderStatusLine("Supervisor", statusError, report.Supervisor.Error, colorize))
	case report.Supervisor.Running:
		fmt.Fprintln(out, renderStatusLine("Supervisor", statusOK, fmt.Sprintf("Running (pid %d)", report.Supervisor.PID), colorize))
	default:
		fmt.Fprintln(out, renderStatusLine("Supervisor", statusWarn, "Not running", colorize))
	}
	if snap.Health == supervisor.SystemUnknown {
		fmt.Fprintln(out, renderStatusLine("Health", statusError, "unknown: "+snap.Error, colorize))
		return
	}
	if snap.SystemRunning {
		fmt.Fprintln(out, renderStatusLine("System", statusOK, "Running", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("System", statusWarn, "Paused", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Health", systemHealthKind(snap.Health), string(snap.Health), colorize))
	fmt.Fprintln(out, renderStatusLine("Backlog", statusInfo, fmt.Sprintf("%d item(s)", snap.Backlog), colorize))
	fmt.Fprintln(out)

	fmt.Fprint(out, queueStatsTable(snap.Queues))
	fmt.Fprint(out, workersTable(snap))
}

var statsColumns = []queue.Status{
	queue.StatusPending,
	queue.StatusProcessing,
	queue.StatusAwaitingApproval,
	queue.StatusCompleted,
	queue.StatusFailed,
	queue.StatusLowQuality,
	queue.StatusExhausted,
	queue.StatusSkipped,
}

func queueStatsTable(depths map[string]queue.Stats) string {
	headers := []string{"Queue"}
	aligns := []columnAlignment{alignLeft}
	for _, status := range statsColumns {
		headers = append(headers, displayName(string(status)))
		aligns = append(aligns, alignRight)
	}
	rows := make([][]string, 0, len(depths))
	for _, name := range queue.Names() {
		stats := depths[name]
		row := []string{displayName(name)}
		for _, status := range statsColumns {
			row = append(row, strconv.Itoa(stats[status]))
		}
		rows = append(rows, row)
	}
	return tableSpec{title: "Queues", headers: headers, aligns: aligns}.render(rows)
}

func workersTable(snap supervisor.Snapshot) string {
	rows := make([][]string, 0, len(snap.Workers))
	for _, w := range snap.Workers {
		heartbeat := ""
		if w.LastHeartbeat != nil {
			heartbeat = time.Duration(w.HeartbeatAge*float64(time.Second)).Round(time.Second).String() + " ago"
		}
		rows = append(rows, []string{
			displayName(w.Name),
			yesNo(w.Enabled),
			string(w.Health),
			heartbeat,
			strconv.FormatInt(w.Processed, 10),
			strconv.FormatInt(w.Errors, 10),
			w.CurrentItem,
		})
	}
	return tableSpec{
		title:   "Workers",
		headers: []string{"Worker", "Enabled", "Health", "Heartbeat", "Processed", "Errors", "Current"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	}.render(rows)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
