package selfupdate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HappyDOGE/cupdater/internal/manifest"
)

func withFrozen(t *testing.T, value string) {
	t.Helper()

	orig := frozen
	frozen = value
	t.Cleanup(func() { frozen = orig })
}

func TestCheck_NotFrozen_NoOp(t *testing.T) {
	withFrozen(t, "")

	m := &manifest.Manifest{Self: map[string]manifest.SelfTarget{
		platformKey(): {URL: "https://example.com/new", SHA256: "deadbeef"},
	}}

	require.NoError(t, Check(m, false))
}

func TestCheck_IgnoreFlag_NoOp(t *testing.T) {
	withFrozen(t, "1")

	m := &manifest.Manifest{Self: map[string]manifest.SelfTarget{
		platformKey(): {URL: "https://example.com/new", SHA256: "deadbeef"},
	}}

	require.NoError(t, Check(m, true))
}

func TestCheck_NoTargetForPlatform_NoOp(t *testing.T) {
	withFrozen(t, "1")

	m := &manifest.Manifest{Self: map[string]manifest.SelfTarget{}}

	require.NoError(t, Check(m, false))
}

func TestCheck_HashMismatch(t *testing.T) {
	withFrozen(t, "1")

	got, err := hashExecutable()
	require.NoError(t, err)
	assert.NotEmpty(t, got)

	m := &manifest.Manifest{Self: map[string]manifest.SelfTarget{
		platformKey(): {URL: "https://example.com/new", SHA256: strings.Repeat("0", 64)},
	}}

	err = Check(m, false)
	require.Error(t, err)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "https://example.com/new", mismatch.URL)
	assert.True(t, errors.Is(err, ErrHashMismatch))
}

func TestCheck_HashMatch(t *testing.T) {
	withFrozen(t, "1")

	got, err := hashExecutable()
	require.NoError(t, err)

	m := &manifest.Manifest{Self: map[string]manifest.SelfTarget{
		platformKey(): {URL: "https://example.com/new", SHA256: got},
	}}

	require.NoError(t, Check(m, false))
}

func TestPlatformKey_OnlyLinuxOrWindows(t *testing.T) {
	// This test only documents the contract for linux/windows; it does
	// not attempt to simulate other GOOS values since runtime.GOOS is
	// fixed per test binary.
	key := platformKey()
	if key != "" {
		assert.Contains(t, []string{"linux", "windows"}, key)
	}
}
