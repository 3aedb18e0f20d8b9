package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-restbind/core"
)

const serversCatalog = `
version: v1
provider: cloudservers
base_url: https://servers.example.com/v1.0/1234
operations:
  - id: servers.get
    method: GET
    path: /servers/{id}
    params:
      - {name: id, role: path}
  - id: servers.create
    method: POST
    path: /servers
    base_url: https://other.example.com
    params:
      - name: server
        role: payload-field
        required: true
    metadata:
      idempotent: false
`

func TestParse_DecodesOperations(t *testing.T) {
	doc, err := Parse([]byte(serversCatalog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != Version || len(doc.Operations) != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}
	create := doc.Operations[1]
	if create.Params[0].Role != core.ParamRolePayload || !create.Params[0].Required {
		t.Fatalf("unexpected params %+v", create.Params)
	}
	if create.Metadata["idempotent"] != false {
		t.Fatalf("expected metadata to decode, got %+v", create.Metadata)
	}

	resolved := doc.Resolved()
	if resolved[0].Provider != "cloudservers" || resolved[0].BaseURL != "https://servers.example.com/v1.0/1234" {
		t.Fatalf("expected document defaults on first operation, got %+v", resolved[0])
	}
	if resolved[1].BaseURL != "https://other.example.com" {
		t.Fatalf("expected operation base url to win, got %q", resolved[1].BaseURL)
	}
}

func TestValidate_ReportsSchemaViolations(t *testing.T) {
	err := Validate([]byte(`
version: v1
operations:
  - id: servers.get
    method: FETCH
    path: /servers/{id}
    params:
      - {name: id, role: body}
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != TextCodeInvalidCatalog {
		t.Fatalf("unexpected envelope %q/%q", rich.Category, rich.TextCode)
	}
	if len(rich.AllValidationErrors()) < 2 {
		t.Fatalf("expected method and role violations, got %+v", rich.AllValidationErrors())
	}
}

func TestParse_RejectsDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte(`
version: v1
operations:
  - {id: a, path: /a}
  - {id: a, path: /b}
`))
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
}

func TestParse_RejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("version: [v1"))
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != TextCodeInvalidCatalog {
		t.Fatalf("expected invalid catalog error, got %v", err)
	}
	if _, err := Parse(nil); err == nil {
		t.Fatalf("expected empty document to be rejected")
	}
}

func TestLoadFS_ReadsYAMLFilesInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"catalogs/b.yml":     {Data: []byte("version: v1\noperations:\n  - {id: b.list, path: /b}\n")},
		"catalogs/a.yaml":    {Data: []byte("version: v1\noperations:\n  - {id: a.list, path: /a}\n")},
		"catalogs/notes.txt": {Data: []byte("ignored")},
	}
	docs, err := LoadFS(fsys, "catalogs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 2 || docs[0].Operations[0].ID != "a.list" || docs[1].Operations[0].ID != "b.list" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

type recordingRegistrar struct {
	ops    []core.Operation
	failOn string
}

func (r *recordingRegistrar) RegisterOperation(_ context.Context, op core.Operation) (core.TemplateID, error) {
	if op.ID == r.failOn {
		return "", errors.New("rejected")
	}
	r.ops = append(r.ops, op)
	return core.TemplateID(op.ID), nil
}

func TestRegister_StopsAtFirstRejection(t *testing.T) {
	doc, err := Parse([]byte(serversCatalog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	registrar := &recordingRegistrar{failOn: "servers.create"}
	ids, err := Register(context.Background(), registrar, doc)
	if err == nil {
		t.Fatalf("expected registration error")
	}
	if len(ids) != 1 || ids[0] != "servers.get" || registrar.ops[0].Provider != "cloudservers" {
		t.Fatalf("unexpected registration state %v %+v", ids, registrar.ops)
	}
}

func TestRegister_IntoEngine(t *testing.T) {
	doc, err := Parse([]byte(serversCatalog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	templates := core.NewTemplateStore()
	for _, op := range doc.Resolved() {
		if _, err := templates.Register(op); err != nil {
			t.Fatalf("register %s: %v", op.ID, err)
		}
	}
	if len(templates.List()) != 2 {
		t.Fatalf("expected two templates")
	}
}
