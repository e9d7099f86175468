package engine

import (
	"errors"
	"fmt"

	"github.com/HappyDOGE/cupdater/internal/archive"
	"github.com/HappyDOGE/cupdater/internal/httpx"
	"github.com/HappyDOGE/cupdater/internal/manifest"
	"github.com/HappyDOGE/cupdater/internal/remotezip"
	"github.com/HappyDOGE/cupdater/internal/selfupdate"
)

// Kind classifies why Update failed, so a caller (the CLI frontend) can
// decide exit code and message without inspecting the error chain
// itself.
type Kind int

const (
	// KindUnknown is the zero value; Update never returns it wrapped in
	// an *Error deliberately, but a caller that forgets to check ok
	// from errors.As sees it as the default.
	KindUnknown Kind = iota

	// KindTransientNetwork covers HTTP failures that exhausted their
	// retry budget: manifest fetch, archive download, or remote-zip
	// ranged reads.
	KindTransientNetwork

	// KindManifestInvalid means the manifest body failed schema
	// validation or JSON decoding.
	KindManifestInvalid

	// KindManifestMissing means no manifest URL was available.
	KindManifestMissing

	// KindSelfUpdateRequired means the running executable no longer
	// matches the manifest's published hash for this platform.
	KindSelfUpdateRequired

	// KindBranchUnknown means the requested branch isn't defined in
	// the manifest.
	KindBranchUnknown

	// KindLayerUnknown means a branch references a layer id absent
	// from the manifest's layers map.
	KindLayerUnknown

	// KindLayerEmpty means a layer's url list is empty.
	KindLayerEmpty

	// KindFilesystem covers local I/O failures: stat, open, rename,
	// or FileDB errors.
	KindFilesystem

	// KindUnsupportedArchiveMethod means an archive entry used a
	// compression method or zip64 feature this updater can't read.
	KindUnsupportedArchiveMethod
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindManifestInvalid:
		return "manifest_invalid"
	case KindManifestMissing:
		return "manifest_missing"
	case KindSelfUpdateRequired:
		return "self_update_required"
	case KindBranchUnknown:
		return "branch_unknown"
	case KindLayerUnknown:
		return "layer_unknown"
	case KindLayerEmpty:
		return "layer_empty"
	case KindFilesystem:
		return "filesystem"
	case KindUnsupportedArchiveMethod:
		return "unsupported_archive_method"
	default:
		return "unknown"
	}
}

// Error wraps a failure from Update with a Kind classification and the
// underlying cause, mirroring the teacher's status-carrying API error
// type.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr classifies err by the sentinel error sets exposed by the
// packages Update calls into, and wraps it as an *Error. Used at the
// point Update gives up on an operation rather than retrying it.
func wrapErr(err error) *Error {
	if err == nil {
		return nil
	}

	var kind Kind

	switch {
	case errors.Is(err, manifest.ErrInvalid):
		kind = KindManifestInvalid
	case errors.Is(err, manifest.ErrMissing):
		kind = KindManifestMissing
	case errors.Is(err, manifest.ErrBranchUnknown):
		kind = KindBranchUnknown
	case errors.Is(err, manifest.ErrLayerUnknown):
		kind = KindLayerUnknown
	case errors.Is(err, manifest.ErrLayerEmpty):
		kind = KindLayerEmpty
	case errors.Is(err, selfupdate.ErrHashMismatch):
		kind = KindSelfUpdateRequired
	case errors.Is(err, remotezip.ErrUnsupportedMethod):
		kind = KindUnsupportedArchiveMethod
	case errors.Is(err, remotezip.ErrTruncated),
		errors.Is(err, archive.ErrDownloadFailed),
		errors.Is(err, httpx.ErrBadRequest),
		errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrThrottled),
		errors.Is(err, httpx.ErrServerError),
		errors.Is(err, httpx.ErrRangeFailed):
		kind = KindTransientNetwork
	case errors.Is(err, archive.ErrUnsafePath):
		kind = KindFilesystem
	default:
		kind = KindFilesystem
	}

	return &Error{Kind: kind, Err: err}
}
