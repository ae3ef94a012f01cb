// Package telemetry wires up process-wide logging and the boot/shutdown
// audit lock (spec §6 "Exit codes", §9 "Global process state"), in the
// style of the teacher's cmd/polybot/main.go logging setup.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// auditLockFile is the sentinel written at boot and removed on clean
// shutdown (spec §6 "0 normal shutdown (deletes audit lock)").
const auditLockFile = ".audit.lock"

// Setup configures the global zerolog logger the way the teacher's
// cmd/polybot/main.go does: a console writer to stderr, Info by
// default, Debug when debug is true.
func Setup(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func auditLockPath(workDir string) string {
	return filepath.Join(workDir, auditLockFile)
}

// AcquireAuditLock writes the audit lock file, returning wasDirty=true
// if a lock from a previous run was already present — meaning the last
// shutdown was not clean and the caller should run extra recovery (dead
// letter restoration, self-check) before serving traffic.
func AcquireAuditLock(workDir string) (wasDirty bool, err error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return false, fmt.Errorf("telemetry: create work dir: %w", err)
	}

	path := auditLockPath(workDir)
	if _, statErr := os.Stat(path); statErr == nil {
		wasDirty = true
	} else if !os.IsNotExist(statErr) {
		return false, fmt.Errorf("telemetry: stat audit lock: %w", statErr)
	}

	contents := fmt.Sprintf("pid=%d started_at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return wasDirty, fmt.Errorf("telemetry: write audit lock: %w", err)
	}

	if wasDirty {
		log.Warn().Str("path", path).Msg("telemetry: audit lock was already present at boot, previous shutdown was not clean")
	}
	return wasDirty, nil
}

// ReleaseAuditLock removes the lock file on a clean shutdown path.
func ReleaseAuditLock(workDir string) error {
	path := auditLockPath(workDir)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("telemetry: remove audit lock: %w", err)
	}
	return nil
}
