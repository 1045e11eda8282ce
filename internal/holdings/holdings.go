// Package holdings carries the built-in decode rules for EG4 hold registers
// (protocol Table 8) and renders single register values for debugging.
package holdings

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/eg4tools/goeg4/internal/frame"
	"github.com/eg4tools/goeg4/internal/registry"
)

var (
	once    sync.Once
	catalog *registry.Catalog
)

// Catalog returns the hold register catalog. It is built once and shared.
func Catalog() *registry.Catalog {
	once.Do(func() { catalog = registry.NewCatalog(rules()) })
	return catalog
}

// Describe renders one hold register value using the built-in catalog.
func Describe(reg uint16, value uint16) string {
	var slot [2]byte
	binary.BigEndian.PutUint16(slot[:], value)
	records, err := frame.Decode(slot[:], reg, Catalog())
	if err != nil || len(records) == 0 {
		return fmt.Sprintf("hold register %d: %d", reg, value)
	}
	return Render(records[0])
}

// Render formats one decoded record, sub-fields indented beneath the label.
func Render(rec frame.Record) string {
	if rec.Fields != nil {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s:", rec.Label)
		for _, f := range rec.Fields {
			fmt.Fprintf(&sb, "\n  %s: %v", f.Name, f.Value)
		}
		return sb.String()
	}
	if !rec.Known {
		return fmt.Sprintf("%s %d: %v (%s, %s)", rec.Label, rec.Register, rec.Value, rec.Hex, rec.Binary)
	}
	if rec.Unit != "" {
		return fmt.Sprintf("%s: %v %s", rec.Label, rec.Value, rec.Unit)
	}
	return fmt.Sprintf("%s: %v", rec.Label, rec.Value)
}

func plain(reg uint16, label, unit string) registry.Rule {
	return registry.Rule{Register: reg, Label: label, Unit: unit}
}

func scaled(reg uint16, label, unit string, scale float64) registry.Rule {
	return registry.Rule{Register: reg, Label: label, Unit: unit, Scale: scale}
}

func mapped(reg uint16, label string, values map[string]any) registry.Rule {
	return registry.Rule{Register: reg, Label: label, ValueMap: values}
}

// timePair decodes the packed HH:MM setting registers: hour in the low byte,
// minute in the high byte of the word.
func timePair(reg uint16, label string) registry.Rule {
	return registry.Rule{Register: reg, Label: label, Fields: []registry.Field{
		{Name: "hour", Kind: registry.ByteField, Location: 1},
		{Name: "minute", Kind: registry.ByteField, Location: 0},
	}}
}

func bytePair(reg uint16, label, high, low string) registry.Rule {
	return registry.Rule{Register: reg, Label: label, Fields: []registry.Field{
		{Name: high, Kind: registry.ByteField, Location: 0},
		{Name: low, Kind: registry.ByteField, Location: 1},
	}}
}

// bitFlags creates one single-bit field per name, bit 0 first. Empty names
// skip their bit.
func bitFlags(reg uint16, label string, names []string) registry.Rule {
	fields := make([]registry.Field, 0, len(names))
	for i, name := range names {
		if name == "" {
			continue
		}
		fields = append(fields, registry.Field{
			Name: name, Kind: registry.BitField, Location: uint8(i), Size: 1,
			ValueMap: map[string]any{"0": "off", "1": "on"},
		})
	}
	return registry.Rule{Register: reg, Label: label, Fields: fields}
}

var onOff = map[string]any{"0": "Off", "1": "On"}

func rules() []registry.Rule {
	rr := []registry.Rule{
		{Register: 0, Label: "Model info", Fields: []registry.Field{
			{Name: "lithium_type", Kind: registry.BitField, Location: 12, Size: 4},
			{Name: "power_rating", Kind: registry.BitField, Location: 8, Size: 4},
			{Name: "lead_acid_type", Kind: registry.BitField, Location: 4, Size: 4},
			{Name: "battery_type", Kind: registry.BitField, Location: 0, Size: 4},
		}},
		plain(7, "Firmware version code", ""),
		plain(8, "Backup firmware version code", ""),
		plain(9, "Slave CPU version", ""),
		plain(10, "Control CPU version", ""),
		bitFlags(11, "Reset settings", []string{
			"energy_record_clear",
			"reset_all_to_default",
			"adjustment_ratio_clear",
			"fault_record_clear",
			"monitor_data_clear",
			"bms_charge_switch_on",
			"bms_discharge_switch_on",
			"inverter_reboot",
		}),
		bytePair(12, "Clock month/year", "month", "year"),
		bytePair(13, "Clock hour/day", "hour", "day"),
		bytePair(14, "Clock second/minute", "second", "minute"),
		plain(15, "Communication address", ""),
		mapped(16, "Language", map[string]any{"1": "English"}),
		plain(19, "Version", ""),
		mapped(20, "PV input mode", map[string]any{
			"0": "No PV",
			"1": "PV1 connected",
			"2": "PV2 connected",
			"3": "Two parallel PV",
			"4": "Two separate PV",
			"5": "PV1&3 connected",
			"6": "PV2&3 connected",
			"7": "PV1&2&3 connected",
		}),
		bitFlags(21, "Function enable flags", []string{
			"eps_mode",
			"over_frequency_load_reduction",
			"drms",
			"low_voltage_ride_through",
			"anti_islanding",
			"neutral_detection",
			"grid_power_soft_start",
			"ac_charge",
			"off_grid_seamless_switch",
			"power_on",
			"forced_discharge",
			"forced_charge",
			"iso",
			"gfci",
			"dci",
			"feed_in_grid",
		}),
		scaled(22, "Start PV voltage", "V", 0.1),
		plain(23, "Grid connection wait time", "s"),
		plain(24, "Grid reconnection wait time", "s"),
		scaled(25, "Grid connect low voltage", "V", 0.1),
		scaled(26, "Grid connect high voltage", "V", 0.1),
		scaled(27, "Grid connect low frequency", "Hz", 0.01),
		scaled(28, "Grid connect high frequency", "Hz", 0.01),
		scaled(41, "Grid voltage moving average over-voltage protection", "V", 0.1),
		plain(54, "Maximum Q percent for Q(V) curve", "%"),
		scaled(55, "Q(V) lower voltage point 1", "V", 0.1),
		scaled(56, "Q(V) lower voltage point 2", "V", 0.1),
		scaled(57, "Q(V) upper voltage point 1", "V", 0.1),
		scaled(58, "Q(V) upper voltage point 2", "V", 0.1),
		plain(59, "Reactive power command type", ""),
		plain(60, "Active power percent command", "%"),
		plain(61, "Reactive power percent command", "%"),
		scaled(62, "Power factor command", "", 0.001),
		plain(63, "Power soft start slope", ""),
		plain(64, "System charge rate", "%"),
		plain(65, "System discharge rate", "%"),
		plain(66, "Grid charge power rate", "%"),
		plain(67, "AC charge SOC limit", "%"),
		plain(74, "Charge priority power percent", "%"),
		plain(75, "Charge priority SOC limit", "%"),
		plain(82, "Forced discharge SOC limit", "%"),
		mapped(83, "Grid voltage level", map[string]any{"0": "220V", "1": "380V"}),
		timePair(84, "Forced discharge start time 0"),
		timePair(85, "Forced discharge end time 0"),
		scaled(86, "PV2 power rating", "kW", 0.1),
		scaled(87, "Inverter power rating", "kW", 0.1),
		scaled(88, "Inverter efficiency", "%", 0.1),
		scaled(89, "Battery nominal voltage", "V", 0.1),
		scaled(90, "Battery nominal capacity", "kWh", 0.1),
		mapped(91, "System mode", map[string]any{"0": "Normal", "1": "Backup", "2": "ECO"}),
		mapped(92, "System priority", map[string]any{"0": "Battery", "1": "Grid", "2": "PV"}),
		plain(93, "Time zone offset", "h"),
		mapped(94, "Daylight saving time", onOff),
		mapped(95, "Communication protocol", map[string]any{"0": "Modbus", "1": "RS485"}),
		mapped(96, "Communication baud rate", map[string]any{"0": "9600", "1": "19200", "2": "38400"}),
		mapped(97, "Alarm enable", onOff),
		plain(98, "Alarm delay", "s"),
		mapped(99, "Maintenance mode", onOff),
		plain(100, "Maintenance time", "min"),
		plain(118, "Battery voltage derate start", "V"),
		plain(119, "CT power offset", "W"),
		scaled(134, "Under-frequency derate start point", "Hz", 0.01),
		scaled(135, "Under-frequency derate end point", "Hz", 0.01),
		plain(136, "Over-frequency derate ratio", ""),
		plain(137, "Specific load compensation", "W"),
		scaled(138, "Charge power percent command", "%", 0.1),
		scaled(139, "Discharge power percent command", "%", 0.1),
		scaled(140, "AC charge power command", "%", 0.1),
		scaled(141, "Charge priority power command", "%", 0.1),
		scaled(142, "Forced discharge power command", "%", 0.1),
		scaled(143, "Active power percent command", "%", 0.1),
		scaled(144, "Float charge voltage", "V", 0.1),
		mapped(145, "Output priority config", map[string]any{
			"0": "Battery first", "1": "PV first", "2": "AC first",
		}),
		mapped(146, "Line mode", map[string]any{"0": "APL", "1": "UPS", "2": "GEN"}),
		plain(147, "Battery capacity", "Ah"),
		scaled(148, "Battery nominal voltage", "V", 0.1),
		scaled(149, "Equalization voltage", "V", 0.1),
		plain(150, "Equalization interval", "days"),
		plain(151, "Equalization time", "h"),
		scaled(158, "AC charge start voltage", "V", 0.1),
		scaled(159, "AC charge end voltage", "V", 0.1),
		plain(160, "AC charge start SOC", "%"),
		plain(161, "AC charge end SOC", "%"),
		scaled(162, "Battery warning voltage", "V", 0.1),
		scaled(163, "Battery warning recovery voltage", "V", 0.1),
		plain(164, "Battery warning SOC", "%"),
		plain(165, "Battery warning recovery SOC", "%"),
		scaled(166, "Battery low to utility voltage", "V", 0.1),
		plain(167, "Battery low to utility SOC", "%"),
		scaled(168, "AC charge battery current", "A", 0.1),
		scaled(169, "On grid EOD voltage", "V", 0.1),
		plain(170, "AutoTest command", ""),
		{Register: 171, Label: "AutoTest status", Fields: []registry.Field{
			{Name: "status", Kind: registry.BitField, Location: 0, Size: 4, ValueMap: map[string]any{
				"0": "Waiting",
				"1": "Testing",
				"2": "Test failed",
				"3": "Voltage test OK",
				"4": "Frequency test OK",
				"5": "Test passed",
			}},
			{Name: "step", Kind: registry.BitField, Location: 4, Size: 4, ValueMap: map[string]any{
				"0": "No test active",
				"1": "V1L test",
				"2": "V1H test",
				"3": "F1L test",
				"4": "F1H test",
				"5": "V2L test",
				"6": "V2H test",
				"7": "F2L test",
				"8": "F2H test",
			}},
		}},
		scaled(172, "AutoTest limit", "", 0.1),
		plain(173, "AutoTest default time", "ms"),
		scaled(174, "AutoTest trip value", "", 0.1),
		plain(175, "AutoTest trip time", "ms"),
		plain(180, "AFCI arc threshold", ""),
		scaled(181, "Volt-watt V1", "V", 0.1),
		scaled(182, "Volt-watt V2", "V", 0.1),
		plain(183, "Volt-watt delay time", "ms"),
		scaled(184, "Volt-watt P2", "", 0.1),
		plain(185, "Q(V) reference voltage", ""),
		plain(186, "Vref filter time", "s"),
		plain(187, "Q3 Q(V)", ""),
		plain(188, "Q4 Q(V)", ""),
		plain(189, "QP curve P1", "%"),
		plain(190, "QP curve P2", "%"),
		plain(191, "QP curve P3", "%"),
		plain(192, "QP curve P4", "%"),
	}
	for reg := uint16(2); reg <= 6; reg++ {
		rr = append(rr, plain(reg, fmt.Sprintf("Serial number part %d", reg-1), ""))
	}
	for level := 1; level <= 3; level++ {
		base := uint16(29 + 4*(level-1))
		rr = append(rr,
			scaled(base, fmt.Sprintf("Grid voltage level %d under-voltage protection", level), "V", 0.1),
			scaled(base+1, fmt.Sprintf("Grid voltage level %d over-voltage protection", level), "V", 0.1),
			plain(base+2, fmt.Sprintf("Grid voltage level %d under-voltage protection time", level), "ms"),
			plain(base+3, fmt.Sprintf("Grid voltage level %d over-voltage protection time", level), "ms"),
		)
	}
	for level := 1; level <= 3; level++ {
		base := uint16(42 + 4*(level-1))
		rr = append(rr,
			scaled(base, fmt.Sprintf("Grid frequency level %d under-frequency protection", level), "Hz", 0.01),
			scaled(base+1, fmt.Sprintf("Grid frequency level %d over-frequency protection", level), "Hz", 0.01),
			plain(base+2, fmt.Sprintf("Grid frequency level %d under-frequency protection time", level), "ms"),
			plain(base+3, fmt.Sprintf("Grid frequency level %d over-frequency protection time", level), "ms"),
		)
	}
	for i := uint16(0); i < 3; i++ {
		rr = append(rr,
			timePair(68+2*i, fmt.Sprintf("AC charge start time %d", i)),
			timePair(69+2*i, fmt.Sprintf("AC charge end time %d", i)),
			timePair(76+2*i, fmt.Sprintf("Charge priority start time %d", i)),
			timePair(77+2*i, fmt.Sprintf("Charge priority end time %d", i)),
			timePair(152+2*i, fmt.Sprintf("AC first start time %d", i)),
			timePair(153+2*i, fmt.Sprintf("AC first end time %d", i)),
		)
	}
	return rr
}
