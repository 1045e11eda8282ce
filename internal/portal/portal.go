// Package portal reads EG4 monitoring portal export files: line-oriented
// text with tab-separated key/value rows carrying a base64 register frame.
package portal

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// File holds the fields extracted from a portal export.
type File struct {
	ValueFrame    string
	StartRegister uint16
	HasStart      bool
}

// Parse extracts the valueFrame payload and startRegister from a portal
// export. Values are optionally double quoted; unrelated lines are ignored.
func Parse(r io.Reader) (File, error) {
	var f File
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), "\t")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch {
		case strings.HasPrefix(key, "valueFrame"):
			f.ValueFrame = value
		case strings.HasPrefix(key, "startRegister"):
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 0xFFFF {
				return File{}, fmt.Errorf("invalid startRegister %q", value)
			}
			f.StartRegister = uint16(n)
			f.HasStart = true
		}
	}
	if err := scanner.Err(); err != nil {
		return File{}, err
	}
	if f.ValueFrame == "" {
		return File{}, fmt.Errorf("no valueFrame line found")
	}
	return f, nil
}

// ParseFile reads the export at path.
func ParseFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()
	f, err := Parse(fh)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Frame decodes the base64 valueFrame payload.
func (f File) Frame() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(f.ValueFrame)
	if err != nil {
		return nil, fmt.Errorf("decode valueFrame: %w", err)
	}
	return data, nil
}

// SkipSerialHeader splits the ASCII serial prefix off a decoded frame. The
// serial runs up to the first NUL; register data starts right after it.
// Without a NUL the whole buffer counts as header and no data remains.
func SkipSerialHeader(data []byte) (string, []byte) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return printable(data), nil
	}
	return printable(data[:idx]), data[idx+1:]
}

// HexDump renders up to max bytes as offset, hex and ASCII columns, sixteen
// bytes per row. max <= 0 dumps the whole buffer.
func HexDump(data []byte, max int) string {
	if max > 0 && len(data) > max {
		data = data[:max]
	}
	var sb strings.Builder
	for base := 0; base < len(data); base += 16 {
		end := base + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[base:end]
		fmt.Fprintf(&sb, "%04X  ", base)
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&sb, "%02X ", row[i])
			} else {
				sb.WriteString("   ")
			}
			if i == 7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte(' ')
		sb.WriteString(printable(row))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func printable(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c >= 0x20 && c < 0x7F {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
