package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eg4tools/goeg4/internal/config"
	"github.com/eg4tools/goeg4/internal/export"
	"github.com/eg4tools/goeg4/internal/portal"
	"github.com/eg4tools/goeg4/pkg/goeg4"
)

// The portal debug tool dumped the first 32 bytes of every frame.
const dumpBytes = 32

var (
	rootCmd = &cobra.Command{
		Use:   "goeg4-analyze [portal-file ...]",
		Short: "Decode EG4 inverter register frames",
		Long: "goeg4-analyze decodes EG4 monitoring portal exports and raw register\n" +
			"frames using a JSON register catalog.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return runInteractive(cat)
			}
			return runFiles(cat, args)
		},
	}

	configPath    string
	registersPath string
	startRegister uint16
	format        string
	dump          bool
	verbose       bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&registersPath, "registers", "", "JSON register catalog")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().Uint16Var(&startRegister, "start-register", 0, "start register for bare frames")
	rootCmd.Flags().StringVar(&format, "format", "table", "output format: table, json or cbor")
	rootCmd.Flags().BoolVar(&dump, "dump", false, "hex dump the frame before decoding")
	rootCmd.AddCommand(readCmd, holdCmd, setCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	_ = godotenv.Load()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if verbose {
		cfg.Loglevel = "debug"
	}
	level, err := logrus.ParseLevel(cfg.Loglevel)
	if err != nil {
		return nil, fmt.Errorf("loglevel %q: %w", cfg.Loglevel, err)
	}
	logrus.SetLevel(level)
	return cfg, nil
}

func loadCatalog(cfg *config.Config) (*goeg4.Catalog, error) {
	path := registersPath
	if path == "" {
		path = cfg.Registers
	}
	if path == "" {
		logrus.Warn("no register catalog given, every register decodes as unknown")
		return goeg4.EmptyCatalog(), nil
	}
	cat, err := goeg4.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"definitions": cat.Loaded(),
		"skipped":     cat.Skipped(),
		"duplicates":  cat.Duplicates(),
	}).Infof("loaded %d register definitions from %s", cat.Len(), path)
	return cat, nil
}

func runFiles(cat *goeg4.Catalog, paths []string) error {
	failed := 0
	for _, path := range paths {
		if err := runFile(cat, path); err != nil {
			logrus.WithError(err).WithField("file", path).Error("failed to analyze portal file")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func runFile(cat *goeg4.Catalog, path string) error {
	fmt.Printf("Processing file: %s\n", path)
	result, err := goeg4.AnalyzeFile(path, cat)
	return report(result, err)
}

func runInteractive(cat *goeg4.Catalog) error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("goeg4 analyze mode. Paste a base64 value frame and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result, err := goeg4.AnalyzeFrame(line, cat, goeg4.WithStartRegister(startRegister))
		if err := report(result, err); err != nil {
			logrus.WithError(err).Error("failed to decode frame")
		}
	}
	return scanner.Err()
}

// report prints whatever was decoded. Truncation keeps the partial records
// visible and downgrades to a warning; every other error aborts.
func report(result goeg4.Result, err error) error {
	var trunc *goeg4.TruncatedFrameError
	if err != nil && !errors.As(err, &trunc) {
		return err
	}
	if dump {
		fmt.Println(portal.HexDump(result.Frame, dumpBytes))
	}
	if perr := printResult(result); perr != nil {
		return perr
	}
	if trunc != nil {
		logrus.WithError(trunc).Warn("frame truncated, partial records shown")
	}
	rs := result.RecordSet()
	logrus.WithFields(logrus.Fields{
		"records": rs.Len(),
		"unknown": rs.UnknownCount(),
		"bytes":   result.ByteCount,
	}).Debug("analyze complete")
	return nil
}

func printResult(result goeg4.Result) error {
	if format == "table" {
		if result.Serial != "" {
			fmt.Printf("Serial: %s\n", result.Serial)
		}
		fmt.Printf("Starting at register %d\n", result.StartRegister)
		for _, rec := range result.Records {
			printRecord(rec)
		}
		return nil
	}
	enc, err := export.ByName(format)
	if err != nil {
		return err
	}
	data, err := enc.Encode(result.Records)
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	if format == "json" {
		fmt.Println()
	}
	return nil
}

func printRecord(rec goeg4.Record) {
	switch {
	case rec.Fields != nil:
		fmt.Printf("Register %d (%s):\n", rec.Register, rec.Label)
		for _, f := range rec.Fields {
			fmt.Printf("  %s: %v\n", f.Name, f.Value)
		}
	case !rec.Known:
		fmt.Printf("Register unknown-%d: %v (%s, %s)\n", rec.Register, rec.Value, rec.Hex, rec.Binary)
	case rec.Unit != "":
		fmt.Printf("Register %d (%s): %v %s\n", rec.Register, rec.Label, rec.Value, rec.Unit)
	default:
		fmt.Printf("Register %d (%s): %v\n", rec.Register, rec.Label, rec.Value)
	}
}
