package registry

import (
	"errors"
	"strings"
	"testing"
)

const sampleDoc = `{
  "registers": [
    {
      "register_map": [
        {"register_number": 0, "description": "Inverter state",
         "value_map": {"0": "Standby", "1": "Fault"}},
        {"register_number": 1, "description": "PV1 voltage", "unit": "V", "unit_scale": "0.1"},
        {"register_number": 2, "description": "PV2 voltage", "unit": "V", "unit_scale": 0.1},
        {"register_number": 3, "description": "Battery SOC", "datatype": "uint8", "unit": "%"},
        {"register_number": 4, "description": "Radiator temperature", "datatype": "float", "unit": "C"},
        {"register_number": 5, "description": "Battery status", "num_values": 2,
         "value_map": [
           {"shortname": "charge_enable", "value_unit": "bit", "value_location": 0, "value_size": 1},
           {"shortname": "fault_code", "value_unit": "byte", "value_location": 1},
           {"shortname": "bad_kind", "value_unit": "nibble", "value_location": 0}
         ]}
      ]
    },
    {
      "register_map": [
        {"register_number": 1, "description": "PV1 voltage duplicate"},
        {"description": "no register number"},
        {"register_number": 70000, "description": "out of range"},
        {"register_number": 6, "description": "bad scale", "unit_scale": "fast"},
        {"register_number": 7, "description": "array map without num_values", "value_map": [1, 2]}
      ]
    }
  ]
}`

func buildSample(t *testing.T) *Catalog {
	t.Helper()
	defs, err := Load(strings.NewReader(sampleDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cat, err := Build(defs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return cat
}

func TestBuildCounts(t *testing.T) {
	cat := buildSample(t)
	if cat.Loaded() != 6 {
		t.Fatalf("loaded = %d, want 6", cat.Loaded())
	}
	if cat.Duplicates() != 1 {
		t.Fatalf("duplicates = %d, want 1", cat.Duplicates())
	}
	// no register number, out of range, bad scale, array map, bad_kind field
	if cat.Skipped() != 5 {
		t.Fatalf("skipped = %d, want 5", cat.Skipped())
	}
	if cat.Len() != 6 {
		t.Fatalf("len = %d, want 6", cat.Len())
	}
}

func TestBuildFirstOccurrenceWins(t *testing.T) {
	cat := buildSample(t)
	rule, ok := cat.Lookup(1)
	if !ok {
		t.Fatalf("register 1 missing")
	}
	if rule.Label != "PV1 voltage" {
		t.Fatalf("label = %q, want first occurrence", rule.Label)
	}
	if rule.Scale != 0.1 {
		t.Fatalf("scale = %v, want 0.1", rule.Scale)
	}
}

func TestBuildScaleForms(t *testing.T) {
	cat := buildSample(t)
	for _, reg := range []uint16{1, 2} {
		rule, ok := cat.Lookup(reg)
		if !ok {
			t.Fatalf("register %d missing", reg)
		}
		if rule.Scale != 0.1 {
			t.Fatalf("register %d scale = %v, want 0.1", reg, rule.Scale)
		}
	}
}

func TestBuildDatatypes(t *testing.T) {
	cat := buildSample(t)
	cases := []struct {
		reg  uint16
		want Datatype
	}{
		{0, Uint16},
		{3, Uint8},
		{4, Float32},
	}
	for _, tc := range cases {
		rule, ok := cat.Lookup(tc.reg)
		if !ok {
			t.Fatalf("register %d missing", tc.reg)
		}
		if rule.Datatype != tc.want {
			t.Fatalf("register %d datatype = %v, want %v", tc.reg, rule.Datatype, tc.want)
		}
	}
}

func TestBuildComposite(t *testing.T) {
	cat := buildSample(t)
	rule, ok := cat.Lookup(5)
	if !ok {
		t.Fatalf("register 5 missing")
	}
	if !rule.Composite() {
		t.Fatalf("register 5 should be composite")
	}
	if len(rule.Fields) != 2 {
		t.Fatalf("fields = %d, want 2 (invalid kind dropped)", len(rule.Fields))
	}
	if rule.Fields[0].Name != "charge_enable" || rule.Fields[0].Kind != BitField {
		t.Fatalf("unexpected first field %+v", rule.Fields[0])
	}
	if rule.Fields[1].Name != "fault_code" || rule.Fields[1].Kind != ByteField || rule.Fields[1].Location != 1 {
		t.Fatalf("unexpected second field %+v", rule.Fields[1])
	}
}

func TestBuildCompositeIgnoresScale(t *testing.T) {
	// datatype and unit_scale are dead fields on composite entries, even
	// when unparseable
	doc := `{"registers":[{"register_map":[
	  {"register_number": 12, "description": "Packed", "datatype": "float",
	   "unit_scale": "fast", "num_values": 1,
	   "value_map": [{"shortname": "f", "value_unit": "bit", "value_location": 0, "value_size": 1}]}
	]}]}`
	defs, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cat, err := Build(defs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rule, ok := cat.Lookup(12)
	if !ok || !rule.Composite() {
		t.Fatalf("composite entry should load despite the bad scale")
	}
	if rule.Width() != 2 {
		t.Fatalf("width = %d, want 2", rule.Width())
	}
	if cat.Skipped() != 0 {
		t.Fatalf("skipped = %d, want 0", cat.Skipped())
	}
}

func TestBuildLabelDefault(t *testing.T) {
	defs, err := Load(strings.NewReader(`{"registers":[{"register_map":[{"register_number": 9}]}]}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cat, err := Build(defs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rule, ok := cat.Lookup(9)
	if !ok {
		t.Fatalf("register 9 missing")
	}
	if rule.Label != "Unknown" {
		t.Fatalf("label = %q, want Unknown", rule.Label)
	}
	if rule.Datatype != Uint16 {
		t.Fatalf("datatype = %v, want Uint16 default", rule.Datatype)
	}
}

func TestLoadUnreadable(t *testing.T) {
	cases := []string{
		"not json at all",
		`[1, 2, 3]`,
		`{"other": true}`,
		`{"registers": null}`,
		`{"registers": 42}`,
	}
	for _, doc := range cases {
		_, err := Load(strings.NewReader(doc))
		if err == nil {
			t.Fatalf("Load(%q) should fail", doc)
		}
		var se *SchemaError
		if !errors.As(err, &se) {
			t.Fatalf("Load(%q) error = %T, want *SchemaError", doc, err)
		}
	}
}

func TestLoadTolerantGroups(t *testing.T) {
	doc := `{"registers": ["garbage", {"register_map": [{"register_number": 1}]}, {"no_map": true}]}`
	defs, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cat, err := Build(defs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cat.Loaded() != 1 {
		t.Fatalf("loaded = %d, want 1", cat.Loaded())
	}
	if cat.Skipped() != 2 {
		t.Fatalf("skipped = %d, want 2", cat.Skipped())
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("does/not/exist.json")
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error = %T, want *SchemaError", err)
	}
	if se.Source == "" {
		t.Fatalf("source path missing from error")
	}
}

func TestLookupMiss(t *testing.T) {
	cat := buildSample(t)
	if _, ok := cat.Lookup(4000); ok {
		t.Fatalf("lookup of undefined register should miss")
	}
}

func TestRuleWidth(t *testing.T) {
	cases := []struct {
		rule     Rule
		want     int
		wantRead int
	}{
		{Rule{Datatype: Uint16}, 2, 2},
		{Rule{Datatype: Uint8}, 2, 1},
		{Rule{Datatype: Float32}, 4, 4},
		{Rule{Fields: []Field{{Name: "f", Kind: BitField, Size: 1}}}, 2, 2},
	}
	for _, tc := range cases {
		if got := tc.rule.Width(); got != tc.want {
			t.Fatalf("width of %+v = %d, want %d", tc.rule, got, tc.want)
		}
		if got := tc.rule.ReadWidth(); got != tc.wantRead {
			t.Fatalf("read width of %+v = %d, want %d", tc.rule, got, tc.wantRead)
		}
	}
}

func TestNewCatalogFirstWins(t *testing.T) {
	cat := NewCatalog([]Rule{
		{Register: 21, Label: "Function flags"},
		{Register: 21, Label: "Shadow"},
		{Register: 22, Label: "Start PV voltage", Scale: 0.1, Unit: "V"},
	})
	if cat.Loaded() != 2 || cat.Duplicates() != 1 {
		t.Fatalf("loaded = %d duplicates = %d, want 2 and 1", cat.Loaded(), cat.Duplicates())
	}
	rule, ok := cat.Lookup(21)
	if !ok || rule.Label != "Function flags" {
		t.Fatalf("first rule should win: %+v", rule)
	}
}
