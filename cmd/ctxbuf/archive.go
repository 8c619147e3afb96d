package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/archive"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
)

const previewLen = 48

func archiveCmd(args []string, w io.Writer) error {
	if len(args) == 0 || args[0] != "list" {
		return errors.New("usage: ctxbuf archive list [options]")
	}

	fs := newFlagSet("archive list")
	configPath := fs.String("config", "", "Path to JSON or YAML config file")
	category := fs.String("category", "", "Only items in this category")
	minPriority := fs.String("min-priority", "", "Only items at least this important")
	limit := fs.Int("limit", 0, "Maximum records to print (0 for all)")
	format := fs.String("format", formatAuto, "Output format: auto, table or json")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	out, err := resolveFormat(*format, w)
	if err != nil {
		return err
	}
	if out == formatProm {
		return errors.New("archive list does not support the prom format")
	}

	filter := archive.Filter{Limit: *limit}
	if *category != "" {
		c, err := contextbuf.ParseCategory(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}
	if *minPriority != "" {
		p, err := contextbuf.ParsePriority(*minPriority)
		if err != nil {
			return err
		}
		filter.MinPriority = &p
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := archive.Open(ctx, cfg.ArchiveOptions())
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("archive backend %q keeps nothing to list", cfg.Archive.Backend)
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}

	if out == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVED\tCATEGORY\tPRIORITY\tTOKENS\tCONTENT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.ArchivedAt.Format(time.RFC3339), r.Item.Category, r.Item.Priority, r.Item.TokenCount, preview(r.Item.Content))
	}
	return tw.Flush()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen-3] + "..."
}
