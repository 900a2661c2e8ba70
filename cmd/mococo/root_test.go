package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("MOCOCO_HOME", tmpDir)
	t.Setenv("MOCOCO_PID_PATH", "")
	t.Setenv("MOCOCO_DB_PATH", "")
	t.Setenv("MOCOCO_ROSTER_PATH", "")
	t.Setenv("MOCOCO_TUNING_PATH", "")
	return tmpDir
}

func TestVersionFlag(t *testing.T) {
	out, err := runCommand(t, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.HasPrefix(out, "mococo ") {
		t.Errorf("version output = %q", out)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	setupHome(t)
	out, err := runCommand(t, "stop")
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Errorf("output = %q, want not-running notice", out)
	}
}

func TestStopRemovesStalePIDFile(t *testing.T) {
	tmpDir := setupHome(t)
	pidFile := filepath.Join(tmpDir, "mococo.pid")
	if err := WritePIDFile(pidFile, 1<<22+9); err != nil {
		t.Fatalf("setup: %v", err)
	}

	out, err := runCommand(t, "stop")
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !strings.Contains(out, "stale") {
		t.Errorf("output = %q, want stale notice", out)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("stale PID file not removed")
	}
}

func TestStatusStopped(t *testing.T) {
	setupHome(t)
	out, err := runCommand(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "scheduler: stopped") {
		t.Errorf("output = %q, want stopped status", out)
	}
}

func TestWorkersListsRoster(t *testing.T) {
	tmpDir := setupHome(t)
	rosterYAML := `workers:
  - name: alice
    leader: true
    channel: general
    model: claude-sonnet-4-5
  - name: bob
    channel: build
  - name: dave
    human: true
`
	if err := os.WriteFile(filepath.Join(tmpDir, "workers.yaml"), []byte(rosterYAML), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	out, err := runCommand(t, "workers")
	if err != nil {
		t.Fatalf("workers failed: %v", err)
	}
	for _, want := range []string{"alice", "leader", "bob", "worker", "dave", "human"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWorkersMissingRosterFails(t *testing.T) {
	setupHome(t)
	if _, err := runCommand(t, "workers"); err == nil {
		t.Fatal("expected error for missing roster file")
	}
}
