package bundle

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed manifest.schema.json
var manifestSchema []byte

const manifestSchemaURL = "manifest.schema.json"

// ManifestEntry describes one source file inside a bundle.
type ManifestEntry struct {
	Name         string         `json:"name"`
	OriginalName string         `json:"originalName"`
	Size         int64          `json:"size"`
	Type         string         `json:"type"`
	Hash         string         `json:"hash"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Manifest is written to bundle-metadata.json in every archive.
type Manifest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Files       []ManifestEntry `json:"files"`
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(manifestSchemaURL, bytes.NewReader(manifestSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(manifestSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// encodeManifest renders m as indented JSON and checks it against the
// embedded schema.
func encodeManifest(m Manifest) ([]byte, error) {
	if m.Files == nil {
		m.Files = []ManifestEntry{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("manifest does not match schema: %w", err)
	}
	return data, nil
}
