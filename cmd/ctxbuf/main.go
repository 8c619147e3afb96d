// Command ctxbuf drives a context buffer from the command line: it replays
// scripted add/remove/reset steps, lists archived items and prints the
// effective configuration.
package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/config"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/version"
)

// Output formats.
const (
	formatAuto  = "auto"
	formatTable = "table"
	formatJSON  = "json"
	formatProm  = "prom"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "replay":
		err = replayCmd(os.Args[2:], os.Stdout)
	case "archive":
		err = archiveCmd(os.Args[2:], os.Stdout)
	case "config":
		err = configCmd(os.Args[2:], os.Stdout)
	case "version":
		fmt.Fprintf(os.Stdout, "ctxbuf %s\n", version.String())
		return
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: ctxbuf <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  replay [-config file] [-format auto|table|json|prom] [-metrics-addr addr] <script.yaml>\n")
	fmt.Fprintf(os.Stderr, "      Run add/remove/reset steps against a fresh buffer and report each outcome\n")
	fmt.Fprintf(os.Stderr, "  archive list [-config file] [-category c] [-min-priority p] [-limit n] [-format ...]\n")
	fmt.Fprintf(os.Stderr, "      List items promoted to the configured archive\n")
	fmt.Fprintf(os.Stderr, "  config [-config file]\n")
	fmt.Fprintf(os.Stderr, "      Print the effective configuration after defaults and CTXBUF_ overrides\n")
	fmt.Fprintf(os.Stderr, "  version\n")
	fmt.Fprintf(os.Stderr, "      Print build information\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  ctxbuf replay -config ctxbuf.yaml session.yaml\n")
	fmt.Fprintf(os.Stderr, "  CTXBUF_ARCHIVE_BACKEND=sqlite ctxbuf archive list -category code\n")
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse([]byte("{}"), config.FormatJSON)
	}
	return config.Load(path)
}

// resolveFormat turns "auto" into a table on a terminal and JSON otherwise.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch format {
	case formatTable, formatJSON, formatProm:
		return format, nil
	case formatAuto, "":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func configCmd(args []string, w io.Writer) error {
	fs := newFlagSet("config")
	configPath := fs.String("config", "", "Path to JSON or YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Tokenizer.APIKey != "" {
		cfg.Tokenizer.APIKey = "********"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
