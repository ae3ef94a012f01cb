package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAuditLockCleanBoot(t *testing.T) {
	dir := t.TempDir()
	wasDirty, err := AcquireAuditLock(dir)
	require.NoError(t, err)
	assert.False(t, wasDirty)

	_, err = os.Stat(filepath.Join(dir, auditLockFile))
	assert.NoError(t, err)
}

func TestAcquireAuditLockDetectsUncleanShutdown(t *testing.T) {
	dir := t.TempDir()
	_, err := AcquireAuditLock(dir)
	require.NoError(t, err)

	// Simulate a crash: lock file left behind, process restarts.
	wasDirty, err := AcquireAuditLock(dir)
	require.NoError(t, err)
	assert.True(t, wasDirty)
}

func TestReleaseAuditLockRemovesFile(t *testing.T) {
	dir := t.TempDir()
	_, err := AcquireAuditLock(dir)
	require.NoError(t, err)

	require.NoError(t, ReleaseAuditLock(dir))

	_, err = os.Stat(filepath.Join(dir, auditLockFile))
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseAuditLockIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, ReleaseAuditLock(dir))
}

func TestAcquireAuditLockAfterCleanReleaseIsNotDirty(t *testing.T) {
	dir := t.TempDir()
	_, err := AcquireAuditLock(dir)
	require.NoError(t, err)
	require.NoError(t, ReleaseAuditLock(dir))

	wasDirty, err := AcquireAuditLock(dir)
	require.NoError(t, err)
	assert.False(t, wasDirty)
}
