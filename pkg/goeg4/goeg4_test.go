package goeg4

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eg4tools/goeg4/internal/registry"
)

func testCatalog() *Catalog {
	return registry.NewCatalog([]registry.Rule{
		{Register: 0, Label: "Inverter state", ValueMap: map[string]any{"4": "PV on-grid"}},
		{Register: 1, Label: "PV1 voltage", Unit: "V", Scale: 0.1},
		{Register: 2, Label: "Battery status", Fields: []registry.Field{
			{Name: "charge_enable", Kind: registry.BitField, Location: 0, Size: 1,
				ValueMap: map[string]any{"0": "off", "1": "on"}},
			{Name: "fault_code", Kind: registry.ByteField, Location: 0},
		}},
	})
}

func frameB64(serial string, data ...byte) string {
	buf := append([]byte(serial), 0x00)
	buf = append(buf, data...)
	return base64.StdEncoding.EncodeToString(buf)
}

func portalText(b64 string) string {
	return "deviceTime\t\"2024-05-11 09:30:00\"\nstartRegister\t\"0\"\nvalueFrame\t\"" + b64 + "\"\n"
}

func TestAnalyze(t *testing.T) {
	b64 := frameB64("BA12345678",
		0x00, 0x04, // state -> PV on-grid
		0x09, 0xC4, // 2500 -> 250.0 V
		0x00, 0x03) // composite: charge on, fault 0
	result, err := Analyze(portalText(b64), testCatalog())
	require.NoError(t, err)
	require.Equal(t, "BA12345678", result.Serial)
	require.Equal(t, uint16(0), result.StartRegister)
	require.Equal(t, 17, result.ByteCount)
	require.Len(t, result.Records, 3)
	require.Equal(t, "PV on-grid", result.Records[0].Value)
	require.InDelta(t, 250.0, result.Records[1].Value, 1e-9)
	require.Equal(t, "on", result.Records[2].Fields[0].Value)
	require.Equal(t, 0, result.Records[2].Fields[1].Value)
}

func TestAnalyzeMissingValueFrame(t *testing.T) {
	_, err := Analyze("startRegister\t\"0\"\n", testCatalog())
	require.Error(t, err)
}

func TestAnalyzeFileMissing(t *testing.T) {
	_, err := AnalyzeFile("does/not/exist.txt", testCatalog())
	require.Error(t, err)
}

func TestAnalyzeFrameStartRegister(t *testing.T) {
	b64 := frameB64("BA12345678", 0x09, 0xC4)
	result, err := AnalyzeFrame(b64, testCatalog(), WithStartRegister(1))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.Equal(t, uint16(1), result.Records[0].Register)
	require.InDelta(t, 250.0, result.Records[0].Value, 1e-9)
}

func TestAnalyzeFrameWithoutSerialHeader(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte{0x00, 0x04})
	result, err := AnalyzeFrame(b64, testCatalog(), WithoutSerialHeader())
	require.NoError(t, err)
	require.Empty(t, result.Serial)
	require.Len(t, result.Records, 1)
	require.Equal(t, "PV on-grid", result.Records[0].Value)
}

func TestAnalyzeFrameBadBase64(t *testing.T) {
	_, err := AnalyzeFrame("!!! not base64", testCatalog())
	require.Error(t, err)
}

func TestAnalyzeTruncatedKeepsPartial(t *testing.T) {
	b64 := frameB64("BA12345678", 0x00, 0x04, 0x09)
	result, err := Analyze(portalText(b64), testCatalog())
	require.Error(t, err)
	var trunc *TruncatedFrameError
	require.ErrorAs(t, err, &trunc)
	require.Equal(t, 2, trunc.Offset)
	require.Equal(t, uint16(1), trunc.Register)
	require.Len(t, result.Records, 1)
	require.Equal(t, "PV on-grid", result.Records[0].Value)
}

func TestAnalyzeFrameMaxRegisters(t *testing.T) {
	b64 := frameB64("BA12345678", 0x00, 0x04, 0x09, 0xC4, 0x00, 0x03)
	result, err := AnalyzeFrame(b64, testCatalog(), WithMaxRegisters(2))
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
}

func TestAnalyzeEmptyCatalog(t *testing.T) {
	b64 := frameB64("BA12345678", 0x12, 0x34)
	result, err := AnalyzeFrame(b64, EmptyCatalog())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.False(t, result.Records[0].Known)
	require.Equal(t, "0x1234", result.Records[0].Hex)
}

func TestResultString(t *testing.T) {
	b64 := frameB64("BA12345678", 0x00, 0x04)
	result, err := Analyze(portalText(b64), testCatalog())
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.String()), &summary))
	require.Equal(t, "BA12345678", summary["serial"])
	require.Len(t, summary["records"], 1)
}

func TestDecodePassthrough(t *testing.T) {
	records, err := Decode([]byte{0x00, 0x04}, 0, testCatalog())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "PV on-grid", records[0].Value)
}

func TestRecordSet(t *testing.T) {
	b64 := frameB64("BA12345678",
		0x00, 0x04,
		0x09, 0xC4,
		0x00, 0x01,
		0xAB, 0xCD) // register 3 has no rule
	result, err := Analyze(portalText(b64), testCatalog())
	require.NoError(t, err)
	rs := result.RecordSet()
	require.Equal(t, 4, rs.Len())
	require.Len(t, rs.Records(), 4)

	rec, ok := rs.ByRegister(1)
	require.True(t, ok)
	require.Equal(t, "PV1 voltage", rec.Label)
	_, ok = rs.ByRegister(40)
	require.False(t, ok)

	value, ok := rs.Value(0)
	require.True(t, ok)
	require.Equal(t, "PV on-grid", value)
	_, ok = rs.Value(2) // composite has no scalar value
	require.False(t, ok)

	voltage, err := rs.Float(1)
	require.NoError(t, err)
	require.InDelta(t, 250.0, voltage, 1e-9)
	_, err = rs.Float(0) // mapped to a non-numeric string
	require.Error(t, err)
	_, err = rs.Float(40)
	require.Error(t, err)

	charge, ok := rs.Sub(2, "charge_enable")
	require.True(t, ok)
	require.Equal(t, "on", charge)
	_, ok = rs.Sub(2, "missing")
	require.False(t, ok)
	_, ok = rs.Sub(1, "charge_enable")
	require.False(t, ok)

	require.Equal(t, 1, rs.UnknownCount())
}

func TestAnalyzeIdempotent(t *testing.T) {
	b64 := frameB64("BA12345678", 0x00, 0x04, 0x09, 0xC4, 0x00, 0x01)
	text := portalText(b64)
	first, err := Analyze(text, testCatalog())
	require.NoError(t, err)
	second, err := Analyze(text, testCatalog())
	require.NoError(t, err)
	require.Equal(t, first.Records, second.Records)
}

func TestAnalyzeTruncatedError(t *testing.T) {
	_, err := Analyze(portalText(frameB64("BA12345678", 0x09)), testCatalog())
	require.Error(t, err)
	require.True(t, errors.As(err, new(*TruncatedFrameError)))
	require.Contains(t, err.Error(), "offset 0")
}
