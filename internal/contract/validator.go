package contract

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Contract names understood by the guide.
const (
	Command  = "command"
	NavEvent = "nav_event"
	Status   = "status"
)

//go:embed schemas/*.schema.json
var embedded embed.FS

// Validator validates messages against JSON Schema contracts.
//
// Every message the guide publishes, and every command it accepts, is
// validated first. Invalid messages are rejected with the schema error.
type Validator struct {
	schemas map[string]*jsonschema.Schema
	logger  *log.Logger
}

// New compiles the contracts shipped with the guide.
func New() (*Validator, error) {
	return NewFromFS(embedded, "schemas")
}

// NewFromFS compiles every *.schema.json file in dir of fsys. Contract names
// are derived from the file names ("status.schema.json" -> "status").
func NewFromFS(fsys fs.FS, dir string) (*Validator, error) {
	v := &Validator{
		schemas: make(map[string]*jsonschema.Schema),
		logger:  log.Default(),
	}

	files, err := fs.Glob(fsys, path.Join(dir, "*.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to find schema files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no schema files found in %s", dir)
	}

	for _, file := range files {
		schema, err := loadSchema(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		name := strings.TrimSuffix(path.Base(file), ".schema.json")
		v.schemas[name] = schema
	}
	v.logger.Printf("INFO: Loaded %d contracts: %s", len(v.schemas), strings.Join(v.Contracts(), ", "))

	return v, nil
}

// Contracts returns the loaded contract names, sorted.
func (v *Validator) Contracts() []string {
	names := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks message against the named contract. The message goes
// through its JSON encoding first, so structs and typed numbers validate the
// same way they will appear on the wire.
func (v *Validator) Validate(message interface{}, contract string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", contract, err)
	}
	return v.ValidateJSON(data, contract)
}

// ValidateJSON checks raw JSON against the named contract.
func (v *Validator) ValidateJSON(data []byte, contract string) error {
	schema, ok := v.schemas[contract]
	if !ok {
		return fmt.Errorf("unknown contract type: %s", contract)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON for %s: %w", contract, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("validation failed for %s: %w", contract, err)
	}
	return nil
}

func loadSchema(fsys fs.FS, file string) (*jsonschema.Schema, error) {
	f, err := fsys.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	defer f.Close()

	doc, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	url := "mem:///" + file
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}
