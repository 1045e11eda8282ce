package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/eg4tools/goeg4/internal/registry"
)

// Record is one decoded register slot, in frame order.
type Record struct {
	Register uint16     `json:"register"`
	Known    bool       `json:"known"`
	Label    string     `json:"label"`
	Value    any        `json:"value,omitempty"`
	Unit     string     `json:"unit,omitempty"`
	Fields   []SubField `json:"fields,omitempty"`
	Hex      string     `json:"hex,omitempty"`
	Binary   string     `json:"binary,omitempty"`
}

// SubField is one extracted component of a composite register, in rule order.
type SubField struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// TruncatedFrameError reports a frame that ended inside a register slot. The
// records decoded before the fault are still returned alongside it.
type TruncatedFrameError struct {
	Offset    int
	Register  uint16
	Need      int
	Remaining int
}

func (e *TruncatedFrameError) Error() string {
	return fmt.Sprintf("frame truncated at offset %d: register %d needs %d bytes, %d remain",
		e.Offset, e.Register, e.Need, e.Remaining)
}

// Decode walks buf from offset zero, assigning consecutive register numbers
// starting at start and applying the catalog rule for each slot. Registers
// without a rule decode as big-endian uint16 with hex and binary renderings.
// The catalog is never written to, so concurrent passes over separate buffers
// may share one. When the buffer ends inside a slot the records decoded so
// far are returned together with a *TruncatedFrameError.
func Decode(buf []byte, start uint16, cat *registry.Catalog) ([]Record, error) {
	return DecodeLimit(buf, start, cat, 0)
}

// DecodeLimit decodes at most max records; max <= 0 decodes the whole buffer.
func DecodeLimit(buf []byte, start uint16, cat *registry.Catalog, max int) ([]Record, error) {
	var records []Record
	offset := 0
	register := start
	for offset < len(buf) {
		if max > 0 && len(records) >= max {
			break
		}
		rule, known := cat.Lookup(register)
		need, width := 2, 2
		if known {
			need = rule.ReadWidth()
			width = rule.Width()
		}
		if remaining := len(buf) - offset; remaining < need {
			return records, &TruncatedFrameError{
				Offset:    offset,
				Register:  register,
				Need:      need,
				Remaining: remaining,
			}
		}
		// A uint8 slot may be cut short by the end of the buffer; only its
		// first byte is read anyway.
		end := offset + width
		if end > len(buf) {
			end = len(buf)
		}
		slot := buf[offset:end]
		if known {
			records = append(records, decodeKnown(slot, rule))
		} else {
			records = append(records, decodeUnknown(slot, register))
		}
		offset += width
		register++
	}
	return records, nil
}

func decodeKnown(slot []byte, rule *registry.Rule) Record {
	rec := Record{
		Register: rule.Register,
		Known:    true,
		Label:    rule.Label,
		Unit:     rule.Unit,
	}
	if rule.Composite() {
		word := binary.BigEndian.Uint16(slot)
		rec.Fields = extractFields(word, slot, rule.Fields)
		return rec
	}
	var value any
	switch rule.Datatype {
	case registry.Float32:
		value = float64(math.Float32frombits(binary.BigEndian.Uint32(slot)))
	case registry.Uint8:
		// Only the first byte carries data; the second is slot padding.
		value = int(slot[0])
	default:
		value = int(binary.BigEndian.Uint16(slot))
	}
	if rule.Scale != 0 {
		value = asFloat(value) * rule.Scale
	}
	rec.Value = applyValueMap(value, rule.ValueMap)
	return rec
}

func decodeUnknown(slot []byte, register uint16) Record {
	value := binary.BigEndian.Uint16(slot)
	return Record{
		Register: register,
		Label:    "Unknown register",
		Value:    int(value),
		Hex:      fmt.Sprintf("0x%04X", value),
		Binary:   fmt.Sprintf("0b%016b", value),
	}
}

func extractFields(word uint16, slot []byte, fields []registry.Field) []SubField {
	out := make([]SubField, 0, len(fields))
	for _, f := range fields {
		var value any
		switch f.Kind {
		case registry.ByteField:
			value = int(slot[f.Location])
		default:
			mask := uint16(1)<<f.Size - 1
			value = int(word >> f.Location & mask)
		}
		out = append(out, SubField{Name: f.Name, Value: applyValueMap(value, f.ValueMap)})
	}
	return out
}

func asFloat(value any) float64 {
	switch v := value.(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

func applyValueMap(value any, vm map[string]any) any {
	if len(vm) == 0 {
		return value
	}
	if mapped, ok := vm[mapKey(value)]; ok {
		return mapped
	}
	return value
}

// mapKey renders a decoded value the way catalog value maps key it: integral
// values in plain decimal form, everything else in minimal float notation.
func mapKey(value any) string {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}
