package manifest

import "errors"

// Sentinel errors classifying manifest-level failures. Use errors.Is to
// check; internal/engine wraps these into its Kind taxonomy.
var (
	// ErrInvalid means the manifest body was not valid JSON or failed
	// schema validation.
	ErrInvalid = errors.New("manifest: invalid")

	// ErrMissing means no manifest URL was available to fetch from.
	ErrMissing = errors.New("manifest: missing")

	// ErrBranchUnknown means a requested branch name is not defined in
	// the manifest's branches map.
	ErrBranchUnknown = errors.New("manifest: unknown branch")

	// ErrLayerUnknown means a branch references a layer id absent from
	// the manifest's layers map.
	ErrLayerUnknown = errors.New("manifest: unknown layer")

	// ErrLayerEmpty means a layer's url list is empty.
	ErrLayerEmpty = errors.New("manifest: layer has no urls")
)
