// Package contexttracker builds per-session environment snapshots used as
// backend prompt material.
package contexttracker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/ports"
)

// subCommandTimeout bounds every shell-out while collecting a snapshot.
const subCommandTimeout = 2 * time.Second

// Factory creates trackers for newly connected peers.
type Factory struct{}

// NewFactory builds a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create implements ports.ContextFactory. Collection is best-effort: any
// sub-source that fails leaves its field empty and the operation as a whole
// never fails.
func (f *Factory) Create(ctx context.Context, pid, uid int) ports.ContextTracker {
	t := &Tracker{
		snapshot: domain.SessionContext{
			ProcessID: pid,
			UserID:    uid,
		},
	}
	t.populate(ctx)
	return t
}

// Tracker owns one session's context. It is used only by the session's
// goroutine and carries no lock.
type Tracker struct {
	snapshot domain.SessionContext
}

// NeedsRefresh reports whether the snapshot is older than the staleness
// window.
func (t *Tracker) NeedsRefresh() bool {
	return time.Since(t.snapshot.LastUpdate) > domain.ContextStaleness
}

// Refresh re-populates all fields with the same best-effort semantics as
// creation. The command history survives refreshes.
func (t *Tracker) Refresh(ctx context.Context) {
	t.populate(ctx)
}

// AddCommand appends to the recent-command ring, evicting the oldest entry
// past capacity. Insertion order is preserved.
func (t *Tracker) AddCommand(cmd string) {
	t.snapshot.RecentCommands = append(t.snapshot.RecentCommands, cmd)
	if n := len(t.snapshot.RecentCommands); n > domain.MaxRecentCommands {
		t.snapshot.RecentCommands = t.snapshot.RecentCommands[n-domain.MaxRecentCommands:]
	}
}

// Summarize produces the short prompt-context line.
func (t *Tracker) Summarize() string {
	return fmt.Sprintf("User: %s@%s in %s",
		t.snapshot.Username, t.snapshot.Hostname, t.snapshot.WorkingDir)
}

// Snapshot returns the full structured context for the get_context action.
func (t *Tracker) Snapshot() domain.SessionContext {
	snap := t.snapshot
	snap.RecentCommands = append([]string(nil), t.snapshot.RecentCommands...)
	return snap
}

func (t *Tracker) populate(ctx context.Context) {
	t.snapshot.WorkingDir = workingDir()
	t.snapshot.Username, t.snapshot.Shell = userInfo()
	t.snapshot.Hostname = hostName()
	t.snapshot.GitBranch, t.snapshot.GitStatus = gitInfo(ctx, t.snapshot.WorkingDir)
	t.snapshot.EnvironmentVars = environmentVars()
	t.snapshot.RunningProcesses = runCmd(ctx, "", "ps", "-eo", "pid,comm", "--sort=-pcpu")
	t.snapshot.OpenPorts = runCmd(ctx, "", "ss", "-tlnp")
	t.snapshot.DiskUsage = runCmd(ctx, "", "df", "-h", ".")
	t.snapshot.LastUpdate = time.Now()
}

func workingDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "/"
}

func userInfo() (name, shell string) {
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		name = "unknown"
	}
	shell = os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return name, filepath.Base(shell)
}

func hostName() string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "localhost"
}

func environmentVars() map[string]string {
	vars := map[string]string{}
	for _, key := range []string{"PATH", "HOME", "LANG", "TERM"} {
		if v := os.Getenv(key); v != "" {
			vars[key] = v
		}
	}
	return vars
}

func gitInfo(ctx context.Context, dir string) (branch, status string) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return "", ""
	}
	branch = strings.TrimSpace(runCmd(ctx, dir, "git", "rev-parse", "--abbrev-ref", "HEAD"))
	status = strings.TrimSpace(runCmd(ctx, dir, "git", "status", "--short"))
	return branch, status
}

func runCmd(ctx context.Context, dir string, name string, args ...string) string {
	if _, err := exec.LookPath(name); err != nil {
		return ""
	}
	cctx, cancel := context.WithTimeout(ctx, subCommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}

var (
	_ ports.ContextTracker = (*Tracker)(nil)
	_ ports.ContextFactory = (*Factory)(nil)
)
