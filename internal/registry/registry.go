package registry

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Datatype selects the scalar decode for a register slot.
type Datatype int

const (
	Uint16  Datatype = iota // 2 bytes, big-endian
	Uint8                   // reads 1 byte, slot still advances 2
	Float32                 // 4 bytes, big-endian IEEE 754
)

// FieldKind selects how a composite sub-field is cut from the register word.
type FieldKind int

const (
	BitField  FieldKind = iota // shift and mask inside the 16-bit word
	ByteField                  // single byte, location 0 = high byte
)

// Field is one resolved sub-field of a composite rule.
type Field struct {
	Name     string
	Kind     FieldKind
	Location uint8
	Size     uint8
	ValueMap map[string]any
}

// Rule is a fully resolved register decode rule. Fields is non-nil exactly
// for composite rules; Scale zero means no scaling.
type Rule struct {
	Register uint16
	Label    string
	Datatype Datatype
	Unit     string
	Scale    float64
	ValueMap map[string]any
	Fields   []Field
}

// Width returns how many bytes the decode cursor advances for this rule.
// uint8 advances a full 2-byte slot even though only one byte is read.
func (r *Rule) Width() int {
	if r.Fields != nil {
		return 2
	}
	if r.Datatype == Float32 {
		return 4
	}
	return 2
}

// ReadWidth returns how many bytes the decode actually consumes. It differs
// from Width only for uint8, which reads the first byte of its 2-byte slot.
func (r *Rule) ReadWidth() int {
	if r.Fields == nil && r.Datatype == Uint8 {
		return 1
	}
	return r.Width()
}

// Composite reports whether the rule extracts sub-fields.
func (r *Rule) Composite() bool { return r.Fields != nil }

// Catalog maps register numbers to resolved rules. It is immutable after
// Build, so any number of decode passes may share one catalog concurrently.
type Catalog struct {
	rules      map[uint16]*Rule
	loaded     int
	skipped    int
	duplicates int
}

// Lookup returns the rule for a register number.
func (c *Catalog) Lookup(register uint16) (*Rule, bool) {
	rule, ok := c.rules[register]
	return rule, ok
}

// Len returns the number of resolved rules.
func (c *Catalog) Len() int { return len(c.rules) }

// Loaded returns how many entries resolved into rules.
func (c *Catalog) Loaded() int { return c.loaded }

// Skipped returns how many groups, entries and sub-fields were malformed and
// dropped during Build.
func (c *Catalog) Skipped() int { return c.skipped }

// Duplicates returns how many entries repeated an already loaded register
// number and lost to the first occurrence.
func (c *Catalog) Duplicates() int { return c.duplicates }

// Build resolves raw definitions into a catalog. Malformed groups, entries
// and sub-fields are skipped and counted; when a register number appears more
// than once the first definition wins and the rest count as duplicates.
func Build(defs *Definitions) (*Catalog, error) {
	if defs == nil {
		return nil, &SchemaError{Err: errors.New("nil definitions")}
	}
	cat := &Catalog{rules: make(map[uint16]*Rule)}
	for _, rawGroup := range defs.Registers {
		var group GroupDef
		if err := json.Unmarshal(rawGroup, &group); err != nil || group.RegisterMap == nil {
			cat.skipped++
			continue
		}
		for _, rawEntry := range group.RegisterMap {
			var entry EntryDef
			if err := json.Unmarshal(rawEntry, &entry); err != nil {
				cat.skipped++
				continue
			}
			rule, ok := resolve(&entry, &cat.skipped)
			if !ok {
				cat.skipped++
				continue
			}
			if _, exists := cat.rules[rule.Register]; exists {
				cat.duplicates++
				continue
			}
			cat.rules[rule.Register] = rule
			cat.loaded++
		}
	}
	return cat, nil
}

// BuildFile loads and resolves the register definition document at path.
func BuildFile(path string) (*Catalog, error) {
	defs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(defs)
}

// NewCatalog builds a catalog from already resolved rules, used for built-in
// rule sets. The first rule wins on duplicate register numbers.
func NewCatalog(rules []Rule) *Catalog {
	cat := &Catalog{rules: make(map[uint16]*Rule, len(rules))}
	for i := range rules {
		rule := rules[i]
		if _, exists := cat.rules[rule.Register]; exists {
			cat.duplicates++
			continue
		}
		cat.rules[rule.Register] = &rule
		cat.loaded++
	}
	return cat
}

func resolve(entry *EntryDef, skipped *int) (*Rule, bool) {
	if entry.RegisterNumber == nil || *entry.RegisterNumber < 0 || *entry.RegisterNumber > 0xFFFF {
		return nil, false
	}
	rule := &Rule{
		Register: uint16(*entry.RegisterNumber),
		Label:    entry.Description,
		Datatype: parseDatatype(entry.Datatype),
		Unit:     entry.Unit,
	}
	if rule.Label == "" {
		rule.Label = "Unknown"
	}
	if entry.NumValues != nil {
		// Composite rules ignore datatype and unit_scale entirely.
		fields, ok := resolveFields(entry.ValueMap, skipped)
		if !ok {
			return nil, false
		}
		rule.Fields = fields
		return rule, true
	}
	if len(entry.UnitScale) > 0 {
		scale, ok := parseScale(entry.UnitScale)
		if !ok {
			return nil, false
		}
		rule.Scale = scale
	}
	if len(entry.ValueMap) > 0 && string(entry.ValueMap) != "null" {
		var vm map[string]any
		if err := json.Unmarshal(entry.ValueMap, &vm); err != nil {
			return nil, false
		}
		rule.ValueMap = vm
	}
	return rule, true
}

func parseDatatype(token string) Datatype {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "uint8":
		return Uint8
	case "float", "float32":
		return Float32
	default:
		return Uint16
	}
}

func parseScale(raw json.RawMessage) (float64, bool) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

func resolveFields(raw json.RawMessage, skipped *int) ([]Field, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var rawFields []json.RawMessage
	if err := json.Unmarshal(raw, &rawFields); err != nil {
		return nil, false
	}
	fields := make([]Field, 0, len(rawFields))
	for _, rawField := range rawFields {
		var def FieldDef
		if err := json.Unmarshal(rawField, &def); err != nil {
			*skipped++
			continue
		}
		field, ok := resolveField(&def)
		if !ok {
			*skipped++
			continue
		}
		fields = append(fields, field)
	}
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

func resolveField(def *FieldDef) (Field, bool) {
	if def.Shortname == "" || def.ValueLocation == nil {
		return Field{}, false
	}
	loc := *def.ValueLocation
	field := Field{Name: def.Shortname, ValueMap: def.ValueMap}
	switch def.ValueUnit {
	case "bit":
		if loc < 0 || loc > 15 || def.ValueSize < 1 || def.ValueSize > 16 {
			return Field{}, false
		}
		field.Kind = BitField
		field.Location = uint8(loc)
		field.Size = uint8(def.ValueSize)
	case "byte":
		if loc < 0 || loc > 1 {
			return Field{}, false
		}
		field.Kind = ByteField
		field.Location = uint8(loc)
	default:
		return Field{}, false
	}
	return field, true
}
