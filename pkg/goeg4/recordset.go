package goeg4

import (
	"fmt"
	"strconv"
)

// RecordSet indexes decoded records by register number for typed lookups.
// When a register number repeats within one pass (a frame long enough to wrap
// the register space) the first record wins.
type RecordSet struct {
	records []Record
	index   map[uint16]int
}

// RecordSet returns an indexed view over the result's records.
func (r Result) RecordSet() RecordSet {
	index := make(map[uint16]int, len(r.Records))
	for i, rec := range r.Records {
		if _, ok := index[rec.Register]; !ok {
			index[rec.Register] = i
		}
	}
	return RecordSet{records: r.Records, index: index}
}

// Records exposes the underlying records in frame order.
func (rs RecordSet) Records() []Record { return rs.records }

// Len returns how many records the pass produced.
func (rs RecordSet) Len() int { return len(rs.records) }

// ByRegister returns the record decoded for a register number.
func (rs RecordSet) ByRegister(reg uint16) (Record, bool) {
	i, ok := rs.index[reg]
	if !ok {
		return Record{}, false
	}
	return rs.records[i], true
}

// Value returns the decoded, possibly mapped scalar value for a register.
// Composite registers have no scalar value; use Sub for their fields.
func (rs RecordSet) Value(reg uint16) (any, bool) {
	rec, ok := rs.ByRegister(reg)
	if !ok || rec.Fields != nil {
		return nil, false
	}
	return rec.Value, true
}

// Float returns the register value coerced to float64.
func (rs RecordSet) Float(reg uint16) (float64, error) {
	v, ok := rs.Value(reg)
	if !ok {
		return 0, fmt.Errorf("register %d missing", reg)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("register %d is not numeric: %w", reg, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("register %d has unsupported type %T", reg, v)
	}
}

// Sub returns one named sub-field of a composite register.
func (rs RecordSet) Sub(reg uint16, name string) (any, bool) {
	rec, ok := rs.ByRegister(reg)
	if !ok {
		return nil, false
	}
	for _, f := range rec.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// UnknownCount counts the records decoded without a catalog rule.
func (rs RecordSet) UnknownCount() int {
	n := 0
	for _, rec := range rs.records {
		if !rec.Known {
			n++
		}
	}
	return n
}
