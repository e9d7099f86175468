package manifest

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed manifest.schema.json
var schemaJSON []byte

const schemaResourceName = "cupdater-manifest.json"

var (
	compileOnce   sync.Once
	compiled      *jsonschema.Schema
	compileErrVal error
)

// compiledSchema lazily compiles the embedded draft-07 manifest schema
// exactly once per process.
func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7

		if err := compiler.AddResource(schemaResourceName, bytes.NewReader(schemaJSON)); err != nil {
			compileErrVal = fmt.Errorf("manifest: adding schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile(schemaResourceName)
		if err != nil {
			compileErrVal = fmt.Errorf("manifest: compiling schema: %w", err)
			return
		}

		compiled = schema
	})

	return compiled, compileErrVal
}
