// Package export serializes decoded results for machine consumption.
package export

import (
	"encoding/json"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

// Encoder renders a value in one output format.
type Encoder interface {
	ContentType() string
	Encode(v any) ([]byte, error)
}

type jsonEncoder struct{}

// JSON returns an indented JSON encoder.
func JSON() Encoder { return jsonEncoder{} }

func (jsonEncoder) ContentType() string { return "application/json" }

func (jsonEncoder) Encode(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }

type cborEncoder struct{ mode cbor.EncMode }

// CBOR returns a canonical CBOR encoder (RFC 8949 core deterministic profile).
func CBOR() (Encoder, error) {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return cborEncoder{mode: mode}, nil
}

func (e cborEncoder) ContentType() string { return "application/cbor" }

func (e cborEncoder) Encode(v any) ([]byte, error) { return e.mode.Marshal(v) }

// ByName maps a format flag value to an encoder. Supported: json, cbor.
func ByName(name string) (Encoder, error) {
	switch name {
	case "json":
		return JSON(), nil
	case "cbor":
		return CBOR()
	default:
		return nil, fmt.Errorf("unknown output format %q", name)
	}
}
