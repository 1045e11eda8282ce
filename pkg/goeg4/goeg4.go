// Package goeg4 decodes EG4 inverter register frames: monitoring portal
// valueFrame exports or raw register buffers, driven by a JSON register
// catalog.
package goeg4

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eg4tools/goeg4/internal/frame"
	"github.com/eg4tools/goeg4/internal/portal"
	"github.com/eg4tools/goeg4/internal/registry"
)

// Core types re-exported so callers can use decode output directly.
type (
	Record              = frame.Record
	SubField            = frame.SubField
	TruncatedFrameError = frame.TruncatedFrameError
	Catalog             = registry.Catalog
	SchemaError         = registry.SchemaError
)

// LoadCatalog builds a register catalog from a JSON definition file.
func LoadCatalog(path string) (*Catalog, error) {
	return registry.BuildFile(path)
}

// EmptyCatalog returns a catalog without rules; every register decodes as
// unknown.
func EmptyCatalog() *Catalog {
	return registry.NewCatalog(nil)
}

// Result captures one analyzed value frame.
type Result struct {
	Serial        string
	StartRegister uint16
	ByteCount     int
	Frame         []byte
	Records       []Record
}

// String renders a JSON summary of the result.
func (r Result) String() string {
	summary := map[string]any{
		"start_register": r.StartRegister,
		"byte_count":     r.ByteCount,
		"records":        r.Records,
	}
	if r.Serial != "" {
		summary["serial"] = r.Serial
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("serial:%s start:%d records:%d (marshal error: %v)",
			r.Serial, r.StartRegister, len(r.Records), err)
	}
	return string(data)
}

// Analyze decodes a monitoring portal export passed as text: it extracts the
// base64 valueFrame, strips the ASCII serial header, and decodes registers
// from the file's startRegister on. On truncation the partial result is
// returned together with the error.
func Analyze(portalText string, cat *Catalog, opts ...Option) (Result, error) {
	f, err := portal.Parse(strings.NewReader(portalText))
	if err != nil {
		return Result{}, err
	}
	return analyzePortal(f, cat, newOptions(opts))
}

// AnalyzeFile decodes the portal export at path.
func AnalyzeFile(path string, cat *Catalog, opts ...Option) (Result, error) {
	f, err := portal.ParseFile(path)
	if err != nil {
		return Result{}, err
	}
	return analyzePortal(f, cat, newOptions(opts))
}

// AnalyzeFrame decodes a bare base64 value frame. The start register comes
// from WithStartRegister and defaults to zero.
func AnalyzeFrame(frameB64 string, cat *Catalog, opts ...Option) (Result, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(frameB64))
	if err != nil {
		return Result{}, fmt.Errorf("decode frame: %w", err)
	}
	o := newOptions(opts)
	start := uint16(0)
	if o.start != nil {
		start = *o.start
	}
	return analyzeFrame(data, start, cat, o)
}

// Decode runs a decode pass over an already assembled register buffer, for
// callers that fetch registers themselves.
func Decode(buf []byte, start uint16, cat *Catalog) ([]Record, error) {
	return frame.Decode(buf, start, cat)
}

func analyzePortal(f portal.File, cat *Catalog, o options) (Result, error) {
	data, err := f.Frame()
	if err != nil {
		return Result{}, err
	}
	start := f.StartRegister
	if o.start != nil {
		start = *o.start
	}
	return analyzeFrame(data, start, cat, o)
}

func analyzeFrame(data []byte, start uint16, cat *Catalog, o options) (Result, error) {
	result := Result{
		StartRegister: start,
		ByteCount:     len(data),
		Frame:         data,
	}
	payload := data
	if !o.noHeader {
		serial, rest := portal.SkipSerialHeader(data)
		result.Serial = serial
		payload = rest
	}
	records, err := frame.DecodeLimit(payload, start, cat, o.maxRecords)
	result.Records = records
	if err != nil {
		return result, err
	}
	return result, nil
}
