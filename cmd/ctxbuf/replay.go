package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/prometheus/common/expfmt"
	"gopkg.in/yaml.v3"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/internal/kernel"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/metrics"
)

// Step is one scripted buffer operation.
type Step struct {
	Op       string               `yaml:"op"`
	Ref      string               `yaml:"ref"`
	Content  string               `yaml:"content"`
	Category *contextbuf.Category `yaml:"category"`
	Priority *contextbuf.Priority `yaml:"priority"`
	Metadata map[string]string    `yaml:"metadata"`
}

// Script is a replay file. Refs name added items so later steps can remove them.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// StepResult reports what a step did.
type StepResult struct {
	Index   int               `json:"index"`
	Op      string            `json:"op"`
	Ref     string            `json:"ref,omitempty"`
	ID      contextbuf.ItemID `json:"id,omitempty"`
	OK      bool              `json:"ok"`
	Error   string            `json:"error,omitempty"`
	Tokens  int               `json:"current_tokens"`
	Evicted int               `json:"evicted"`
}

// Report is the full replay outcome.
type Report struct {
	Steps    []StepResult     `json:"steps"`
	Stats    contextbuf.Stats `json:"stats"`
	Summary  string           `json:"summary"`
	Metrics  metrics.Snapshot `json:"metrics"`
	Problems []logx.LogEntry  `json:"problems,omitempty"`
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("ctxbuf "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// LoadScript reads a replay script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &s, nil
}

func replayCmd(args []string, w io.Writer) error {
	fs := newFlagSet("replay")
	configPath := fs.String("config", "", "Path to JSON or YAML config file")
	format := fs.String("format", formatAuto, "Output format: auto, table, json or prom")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics on this address while replaying")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("replay needs exactly one script file")
	}

	out, err := resolveFormat(*format, w)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	script, err := LoadScript(fs.Arg(0))
	if err != nil {
		return err
	}

	started := time.Now()
	ctx := logx.WithSession(context.Background(), "replay:"+filepath.Base(fs.Arg(0)))
	k, err := kernel.NewKernel(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = k.Stop(stopCtx)
	}()

	if *metricsAddr != "" || cfg.Metrics.Enabled {
		if _, err := k.StartMetrics(*metricsAddr); err != nil {
			return err
		}
	}

	report, err := Replay(ctx, k.Buffer, script)
	if err != nil {
		return err
	}
	// Archive writes land before anything is printed.
	if err := k.Buffer.FlushArchive(ctx); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	report.Metrics = k.Stats.Snapshot()
	report.Problems = problemsSince(started)

	switch out {
	case formatTable:
		return writeReportTable(w, report)
	case formatProm:
		return writeProm(w, k)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
}

// Replay runs each step against buf. Failed steps are reported, not returned;
// only a malformed script is an error.
func Replay(ctx context.Context, buf *contextbuf.Buffer, script *Script) (*Report, error) {
	refs := make(map[string]contextbuf.ItemID)
	report := &Report{}
	before := buf.Stats().Items

	for i, step := range script.Steps {
		res := StepResult{Index: i + 1, Op: step.Op, Ref: step.Ref}

		switch step.Op {
		case "add":
			if step.Category == nil || step.Priority == nil {
				return nil, fmt.Errorf("step %d: add requires category and priority", i+1)
			}
			var opts []contextbuf.AddOption
			if len(step.Metadata) > 0 {
				opts = append(opts, contextbuf.WithMetadata(step.Metadata))
			}
			id, err := buf.Add(ctx, step.Content, *step.Category, *step.Priority, opts...)
			if err != nil {
				res.Error = err.Error()
				break
			}
			res.ID, res.OK = id, true
			if step.Ref != "" {
				refs[step.Ref] = id
			}
		case "remove":
			id, ok := refs[step.Ref]
			if !ok {
				id = contextbuf.ItemID(step.Ref)
			}
			res.ID = id
			res.OK = buf.Remove(id)
			if !res.OK {
				res.Error = "not present"
			}
		case "reset":
			buf.Reset()
			res.OK = true
		default:
			return nil, fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}

		stats := buf.Stats()
		res.Tokens = stats.CurrentTokens
		// Items that vanished without a remove or reset were evicted.
		if step.Op == "add" && res.OK {
			res.Evicted = before + 1 - stats.Items
		}
		before = stats.Items
		report.Steps = append(report.Steps, res)
	}

	report.Stats = buf.Stats()
	report.Summary = buf.Summary()
	return report, nil
}

// problemsSince collects the warnings and errors logged during a replay.
func problemsSince(t time.Time) []logx.LogEntry {
	var out []logx.LogEntry
	for _, e := range logx.GetRecentLogEntries("", t) {
		if e.Level == string(logx.LevelWarn) || e.Level == string(logx.LevelError) {
			out = append(out, e)
		}
	}
	return out
}

func writeReportTable(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "STEP\tOP\tREF\tRESULT\tTOKENS\tEVICTED")
	for _, s := range r.Steps {
		result := "ok"
		if !s.OK {
			result = s.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n", s.Index, s.Op, s.Ref, result, s.Tokens, s.Evicted)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\n%s\n", r.Summary); err != nil {
		return err
	}
	m := r.Metrics
	if _, err := fmt.Fprintf(w, "adds: %d ok, %d failed; evictions: %d promoted, %d discarded; archive writes: %d ok, %d failed\n",
		m.Adds[metrics.StatusSuccess], failedAdds(m.Adds),
		m.Evictions[metrics.OutcomePromoted], m.Evictions[metrics.OutcomeDiscarded],
		m.ArchiveOK, m.ArchiveFailed); err != nil {
		return err
	}
	for _, p := range r.Problems {
		fmt.Fprintf(w, "%s [%s] %s: %s\n", p.Timestamp, p.Component, p.Level, p.Message)
	}
	return nil
}

func failedAdds(adds map[string]int64) int64 {
	var n int64
	for status, c := range adds {
		if status != metrics.StatusSuccess {
			n += c
		}
	}
	return n
}

func writeProm(w io.Writer, k *kernel.Kernel) error {
	families, err := k.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
