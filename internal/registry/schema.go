package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// SchemaError reports a register definition source that could not be read at
// all: invalid JSON, a non-object root, or a missing registers array.
// Individual malformed entries never produce it; Build skips and counts those.
type SchemaError struct {
	Source string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("register schema unreadable: %v", e.Err)
	}
	return fmt.Sprintf("register schema %s unreadable: %v", e.Source, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Definitions is the raw register definition document as exported by the EG4
// monitoring tooling. Groups stay raw so that one unreadable group cannot
// take the whole document down.
type Definitions struct {
	Registers []json.RawMessage `json:"registers"`
}

// GroupDef wraps one register_map array. Exports carry one group per register
// bank.
type GroupDef struct {
	RegisterMap []json.RawMessage `json:"register_map"`
}

// EntryDef is a single register definition before resolution. ValueMap stays
// raw because the key is overloaded: an object for scalar substitution maps,
// an array of sub-field definitions when num_values marks the entry composite.
type EntryDef struct {
	RegisterNumber *int            `json:"register_number"`
	Description    string          `json:"description"`
	Datatype       string          `json:"datatype"`
	Unit           string          `json:"unit"`
	UnitScale      json.RawMessage `json:"unit_scale"`
	ValueMap       json.RawMessage `json:"value_map"`
	NumValues      *int            `json:"num_values"`
}

// FieldDef describes one sub-field of a composite entry.
type FieldDef struct {
	Shortname     string         `json:"shortname"`
	ValueUnit     string         `json:"value_unit"`
	ValueLocation *int           `json:"value_location"`
	ValueSize     int            `json:"value_size"`
	ValueMap      map[string]any `json:"value_map"`
}

// Load parses a register definition document.
func Load(r io.Reader) (*Definitions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &SchemaError{Err: err}
	}
	var defs Definitions
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, &SchemaError{Err: err}
	}
	if defs.Registers == nil {
		return nil, &SchemaError{Err: errors.New("registers array missing")}
	}
	return &defs, nil
}

// LoadFile reads and parses the document at path.
func LoadFile(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SchemaError{Source: path, Err: err}
	}
	defer f.Close()
	defs, err := Load(f)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Source = path
		}
		return nil, err
	}
	return defs, nil
}
