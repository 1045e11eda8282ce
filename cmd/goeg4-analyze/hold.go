package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eg4tools/goeg4/internal/holdings"
)

var holdCmd = &cobra.Command{
	Use:   "hold <register> <value> [<register> <value> ...]",
	Short: "Describe hold register values",
	Long: "hold renders raw hold register values through the built-in EG4 hold\n" +
		"register catalog. Values accept decimal or 0x-prefixed hex.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected register/value pairs, got %d arguments", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		for i := 0; i < len(args); i += 2 {
			reg, err := parseUint16(args[i])
			if err != nil {
				return fmt.Errorf("register %q: %w", args[i], err)
			}
			value, err := parseUint16(args[i+1])
			if err != nil {
				return fmt.Errorf("value %q: %w", args[i+1], err)
			}
			fmt.Println(holdings.Describe(reg, value))
		}
		return nil
	},
}

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
