package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/testsupport"
)

type ledgerStub struct {
	health queue.DatabaseHealth
	err    error
}

func (s ledgerStub) CheckHealth(context.Context) (queue.DatabaseHealth, error) {
	return s.health, s.err
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLedger(t *testing.T) {
	ok := CheckLedger(context.Background(), ledgerStub{health: queue.DatabaseHealth{Driver: "sqlite", SchemaVersion: "0001", IntegrityCheck: true}})
	if !ok.Passed {
		t.Fatalf("expected pass, got %s", ok.Detail)
	}

	missing := CheckLedger(context.Background(), ledgerStub{health: queue.DatabaseHealth{IntegrityCheck: true, MissingTables: []string{"draft_queue"}}})
	if missing.Passed {
		t.Fatal("expected failure for missing table")
	}

	broken := CheckLedger(context.Background(), ledgerStub{err: errors.New("disk I/O error")})
	if broken.Passed {
		t.Fatal("expected failure when health check errors")
	}

	corrupt := CheckLedger(context.Background(), ledgerStub{health: queue.DatabaseHealth{}})
	if corrupt.Passed {
		t.Fatal("expected failure when integrity check fails")
	}
}

func TestCheckStageCommands(t *testing.T) {
	var script string
	cfg := testsupport.NewConfig(t,
		testsupport.WithScript("research.sh", "exit 0", &script),
		testsupport.WithStage(config.StageResearch, func(s *config.Stage) { s.Command = []string{script} }),
		testsupport.WithStage(config.StageDraft, func(s *config.Stage) { s.Command = []string{"/nonexistent/draft-writer"} }),
	)

	results := CheckStageCommands(cfg)
	if len(results) != 2 {
		t.Fatalf("expected two command checks, got %+v", results)
	}
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	if !byName["Stage research"].Passed {
		t.Fatalf("expected research command to resolve: %+v", byName["Stage research"])
	}
	if byName["Stage draft"].Passed {
		t.Fatalf("expected draft command to fail: %+v", byName["Stage draft"])
	}
}

func TestRunAllAgainstRealLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	results := RunAll(context.Background(), cfg, store)
	if failed := Failed(results); len(failed) > 0 {
		t.Fatalf("expected every check to pass, failed: %+v", failed)
	}
	if len(results) != 3 {
		t.Fatalf("expected directory and ledger checks only, got %+v", results)
	}
}
