// Package manifest implements the manifest document types, embedded
// JSON Schema validation, and ETag-conditional fetch-and-cache pipeline
// described by spec §4.3 and §6.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/HappyDOGE/cupdater/internal/ident"
)

// SelfTarget describes the self-update bundle for one platform.
type SelfTarget struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Branch is an ordered list of layer ids selectable by the user.
type Branch struct {
	Description string   `json:"description,omitempty"`
	Layers      []string `json:"layers"`
}

// Layer is a named collection of one or more archive URLs.
type Layer struct {
	Updated int64    `json:"updated"`
	URL     []string `json:"url"`
}

// Brand carries display metadata.
type Brand struct {
	Name string `json:"name"`
}

// Manifest is the immutable (for the duration of one update run)
// document describing every branch and layer the updater can install.
type Manifest struct {
	Brand    Brand                 `json:"brand"`
	Self     map[string]SelfTarget `json:"self"`
	Branches map[string]Branch     `json:"branches"`
	Layers   map[string]Layer      `json:"layers"`

	// raw is the exact bytes this Manifest was parsed from, returned
	// verbatim by Raw.
	raw []byte
}

// Raw returns the exact JSON bytes the manifest was parsed from.
func (m *Manifest) Raw() []byte {
	return m.raw
}

// Parse validates data against the embedded draft-07 schema and decodes
// it into a Manifest. A schema violation or malformed JSON is reported
// as ErrInvalid (wrapping the underlying cause).
func Parse(data []byte) (*Manifest, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: decoding JSON: %w", ErrInvalid, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest struct: %w", ErrInvalid, err)
	}

	m.raw = data

	return &m, nil
}

// Branch returns the named branch, or an error wrapping ErrBranchUnknown
// if it is not defined.
func (m *Manifest) Branch(name ident.BranchID) (Branch, error) {
	b, ok := m.Branches[name.String()]
	if !ok {
		return Branch{}, fmt.Errorf("%w: %q", ErrBranchUnknown, name)
	}

	return b, nil
}

// Layer returns the named layer, or an error wrapping ErrLayerUnknown if
// it is not defined in the manifest.
func (m *Manifest) Layer(id ident.LayerID) (Layer, error) {
	l, ok := m.Layers[id.String()]
	if !ok {
		return Layer{}, fmt.Errorf("%w: %q", ErrLayerUnknown, id)
	}

	return l, nil
}
