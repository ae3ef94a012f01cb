package credential

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCreationDefaults(t *testing.T) {
	cred := New("edge-1", "tenant-1", "token-abc", nil)
	assert.Equal(t, "edge-1", cred.ClientName)
	assert.False(t, cred.IsExpired())
	assert.False(t, cred.IsSigned())
}

func TestCredentialExpiration(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	notExpired := New("c", "t", "tok", &future)
	assert.False(t, notExpired.IsExpired())

	past := time.Now().Add(-time.Hour).Unix()
	expired := New("c", "t", "tok", &past)
	assert.True(t, expired.IsExpired())
}

func TestCredentialSignAndVerifyRoundTrip(t *testing.T) {
	root := newRootCA(t, "Root CA")

	cred := New("edge-1", "tenant-1", "token-abc", nil).WithDeviceID("hw-12345")
	require.NoError(t, cred.Sign(root.keyPEM))
	assert.True(t, cred.IsSigned())

	require.NoError(t, cred.VerifySignature(root.certPEM))
}

func TestCredentialVerifyFailsAgainstWrongCA(t *testing.T) {
	ca1 := newRootCA(t, "CA 1")
	ca2 := newRootCA(t, "CA 2")

	cred := New("c", "t", "tok", nil)
	require.NoError(t, cred.Sign(ca1.keyPEM))

	err := cred.VerifySignature(ca2.certPEM)
	assert.Error(t, err)
}

func TestCredentialValidateFullSuccess(t *testing.T) {
	root := newRootCA(t, "Root CA")
	future := time.Now().Add(time.Hour).Unix()

	cred := New("edge-1", "tenant-1", "tok", &future).WithDeviceID("hw-12345")
	require.NoError(t, cred.Sign(root.keyPEM))

	require.NoError(t, cred.Validate(root.certPEM, "hw-12345"))
}

func TestCredentialValidateExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour).Unix()
	cred := New("c", "t", "tok", &past)
	assert.Error(t, cred.Validate(nil, ""))
}

func TestCredentialValidateDeviceMismatch(t *testing.T) {
	cred := New("c", "t", "tok", nil).WithDeviceID("hw-12345")
	assert.Error(t, cred.Validate(nil, "hw-99999"))
}

func TestCredentialValidateMissingDeviceID(t *testing.T) {
	cred := New("c", "t", "tok", nil)
	assert.Error(t, cred.Validate(nil, "hw-12345"))
}

func TestCheckClockTamperingNoTimestampIsOK(t *testing.T) {
	cred := New("c", "t", "tok", nil)
	assert.NoError(t, cred.CheckClockTampering())
}

func TestCheckClockTamperingDetectsBackwardJump(t *testing.T) {
	cred := New("c", "t", "tok", nil)
	root := newRootCA(t, "Tenant CA")
	require.NoError(t, cred.MarkVerified(root.keyPEM))

	future := time.Now().Add(2 * time.Hour).Unix()
	cred.LastVerifiedAt = &future

	err := cred.CheckClockTampering()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moved backward")
}

func TestCheckClockTamperingDetectsForwardJump(t *testing.T) {
	cred := New("c", "t", "tok", nil)
	past := time.Now().Add(-40 * 24 * time.Hour).Unix()
	sig := "placeholder"
	cred.LastVerifiedAt = &past
	cred.LastVerifiedAtSignature = &sig

	err := cred.CheckClockTampering()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jumped forward")
}

func TestMarkVerifiedAndVerifyTimestampSignature(t *testing.T) {
	tenantCA := newRootCA(t, "Tenant CA")
	cred := New("edge-1", "tenant-1", "tok", nil)

	require.NoError(t, cred.MarkVerified(tenantCA.keyPEM))
	require.NoError(t, cred.VerifyTimestampSignature(tenantCA.certPEM))
}

func TestStoreSaveLoadDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	cred := New("edge-1", "tenant-1", "tok", nil).WithDeviceID("hw-001")

	require.NoError(t, store.Save(cred))
	assert.True(t, store.Exists())

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "edge-1", loaded.ClientName)
	assert.Equal(t, "hw-001", *loaded.DeviceID)

	require.NoError(t, store.Delete())
	assert.False(t, store.Exists())

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, reloaded)
}

func TestStoreLoadMissingFileReturnsNil(t *testing.T) {
	store := AtPath(filepath.Join(t.TempDir(), "does-not-exist.json"))
	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}
