// Package catalog loads declarative operation catalogs from YAML documents.
//
// A catalog document looks like:
//
//	version: v1
//	provider: cloudservers
//	base_url: https://servers.api.rackspacecloud.com/v1.0/1234
//	operations:
//	  - id: servers.get
//	    method: GET
//	    path: /servers/{id}
//	    params:
//	      - {name: id, role: path}
//
// Documents are checked against an embedded JSON schema before decoding.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-restbind/core"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	Version = "v1"

	TextCodeInvalidCatalog = "RESTBIND_INVALID_CATALOG"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

type Document struct {
	Version     string           `json:"version" yaml:"version"`
	Provider    string           `json:"provider,omitempty" yaml:"provider,omitempty"`
	BaseURL     string           `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Operations  []core.Operation `json:"operations" yaml:"operations"`
}

// Resolved returns the document operations with the document level provider
// and base URL applied to operations that do not set their own.
func (d Document) Resolved() []core.Operation {
	out := make([]core.Operation, 0, len(d.Operations))
	for _, op := range d.Operations {
		if strings.TrimSpace(op.Provider) == "" {
			op.Provider = d.Provider
		}
		if strings.TrimSpace(op.BaseURL) == "" {
			op.BaseURL = d.BaseURL
		}
		out = append(out, op)
	}
	return out
}

// Validate checks raw YAML against the catalog schema and reports every
// violation as a field error.
func Validate(data []byte) error {
	generic, err := decodeGeneric(data)
	if err != nil {
		return err
	}
	return validateGeneric(generic)
}

// Parse validates and decodes one catalog document.
func Parse(data []byte) (Document, error) {
	generic, err := decodeGeneric(data)
	if err != nil {
		return Document{}, err
	}
	if err := validateGeneric(generic); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, invalidCatalog(err, "decode catalog")
	}
	seen := map[string]struct{}{}
	for _, op := range doc.Operations {
		id := strings.TrimSpace(op.ID)
		if _, dup := seen[id]; dup {
			return Document{}, goerrors.NewValidation("catalog: validation failed", goerrors.FieldError{
				Field:   "operations",
				Message: fmt.Sprintf("duplicate operation id %q", id),
			}).WithCode(http.StatusBadRequest).WithTextCode(TextCodeInvalidCatalog)
		}
		seen[id] = struct{}{}
	}
	return doc, nil
}

// LoadFile parses the catalog at path.
func LoadFile(filePath string) (Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("catalog: read %s: %w", filePath, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("catalog: %s: %w", filePath, err)
	}
	return doc, nil
}

// LoadFS parses every .yaml and .yml file under dir, in lexical order.
func LoadFS(fsys fs.FS, dir string) ([]Document, error) {
	var files []string
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(path.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: walk %s: %w", dir, err)
	}
	sort.Strings(files)
	docs := make([]Document, 0, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", file, err)
		}
		doc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", file, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

type operationRegistrar interface {
	RegisterOperation(ctx context.Context, op core.Operation) (core.TemplateID, error)
}

// Register adds every resolved operation of docs to engine. Registration
// stops at the first rejected operation.
func Register(ctx context.Context, engine operationRegistrar, docs ...Document) ([]core.TemplateID, error) {
	ids := make([]core.TemplateID, 0)
	for _, doc := range docs {
		for _, op := range doc.Resolved() {
			id, err := engine.RegisterOperation(ctx, op)
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func decodeGeneric(data []byte) (any, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, invalidCatalog(err, "parse yaml")
	}
	if generic == nil {
		return nil, invalidCatalog(nil, "catalog document is empty")
	}
	return generic, nil
}

func validateGeneric(generic any) error {
	encoded, err := json.Marshal(generic)
	if err != nil {
		return invalidCatalog(err, "catalog must be a json compatible document")
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(encoded))
	if err != nil {
		return invalidCatalog(err, "schema validation error")
	}
	if result.Valid() {
		return nil
	}
	fields := make([]goerrors.FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		fields = append(fields, goerrors.FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return goerrors.NewValidation("catalog: validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeInvalidCatalog)
}

func invalidCatalog(source error, message string) error {
	if source == nil {
		return goerrors.New("catalog: "+message, goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(TextCodeInvalidCatalog)
	}
	return goerrors.Wrap(source, goerrors.CategoryBadInput, "catalog: "+message).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeInvalidCatalog)
}
