package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"smoothbdr/internal/config"
	"smoothbdr/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckLedger verifies the Ledger answers, carries every queue table and
// passes its integrity check.
func CheckLedger(ctx context.Context, ledger LedgerChecker) Result {
	const name = "Ledger"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	health, err := ledger.CheckHealth(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s %s (error: %v)", health.Driver, health.Location, err)}
	}
	if missing := append(append([]string{}, health.MissingTables...), health.MissingColumns...); len(missing) > 0 {
		return Result{Name: name, Detail: "schema incomplete: missing " + strings.Join(missing, ", ")}
	}
	if !health.IntegrityCheck {
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s %s (schema %s, %d items)", health.Driver, health.Location, health.SchemaVersion, health.TotalItems),
	}
}

// CheckStageCommands reports whether each enabled stage's command resolves.
func CheckStageCommands(cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(deps.StageCommands(cfg))
	results := make([]Result, 0, len(statuses))
	for _, st := range statuses {
		name := "Stage " + st.Name
		if st.Available {
			results = append(results, Result{Name: name, Passed: true, Detail: st.Description})
			continue
		}
		results = append(results, Result{Name: name, Passed: st.Optional, Detail: st.Detail})
	}
	return results
}
