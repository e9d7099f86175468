// Package selfupdate implements the frozen-bundle self-update check:
// hashing the currently running executable and comparing it against
// the manifest's published hash for this platform.
package selfupdate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/HappyDOGE/cupdater/internal/manifest"
)

// frozen is set at build time via -ldflags
// "-X .../selfupdate.frozen=1" for single-file bundle builds. Its zero
// value means an ordinary build, which never triggers a self-update
// check — matching the teacher's version ldflags variable convention.
var frozen string

// ErrHashMismatch is wrapped by MismatchError's Unwrap, for
// errors.Is-based classification at the engine boundary.
var ErrHashMismatch = errors.New("selfupdate: executable hash does not match manifest")

// MismatchError reports that the running executable's SHA-256 doesn't
// match the manifest's expected hash for this platform, carrying the
// update URL the frontend should show.
type MismatchError struct {
	URL  string
	Got  string
	Want string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("selfupdate: hash mismatch (have %s, want %s): update available at %s", e.Got, e.Want, e.URL)
}

func (e *MismatchError) Unwrap() error {
	return ErrHashMismatch
}

// IsFrozen reports whether this build was produced as a frozen,
// single-file bundle.
func IsFrozen() bool {
	return frozen != ""
}

// platformKey maps GOOS to the manifest's self.<platform> key. Other
// platforms have no self-update target.
func platformKey() string {
	switch runtime.GOOS {
	case "linux", "windows":
		return runtime.GOOS
	default:
		return ""
	}
}

// Check verifies the running executable against m.Self for the current
// platform. It is a no-op when the build isn't frozen, when
// ignoreSelfUpdate is set, or when the manifest defines no self-update
// target for this platform. On mismatch it returns *MismatchError.
func Check(m *manifest.Manifest, ignoreSelfUpdate bool) error {
	if ignoreSelfUpdate || !IsFrozen() {
		return nil
	}

	key := platformKey()
	if key == "" {
		return nil
	}

	target, ok := m.Self[key]
	if !ok {
		return nil
	}

	got, err := hashExecutable()
	if err != nil {
		return fmt.Errorf("selfupdate: %w", err)
	}

	if !strings.EqualFold(got, target.SHA256) {
		return &MismatchError{URL: target.URL, Got: got, Want: target.SHA256}
	}

	return nil
}

// hashExecutable returns the lowercase hex SHA-256 of the currently
// running executable, resolving symlinks first so a staged or
// symlinked launcher hashes the real binary.
func hashExecutable() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving executable path: %w", err)
	}

	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}

	f, err := os.Open(exePath)
	if err != nil {
		return "", fmt.Errorf("opening %q: %w", exePath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %q: %w", exePath, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
