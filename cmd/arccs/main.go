package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arccs/internal/assessor"
	"arccs/internal/batch"
	"arccs/internal/dedup"
	"arccs/internal/ingest"
	"arccs/internal/policy"
	"arccs/internal/progress"
	"arccs/internal/quality"
	"arccs/internal/render"
	"arccs/internal/report"
	"arccs/internal/schema"
	"arccs/internal/server"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

// codeError returns an exitErr for the given code.
func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// checkFlags holds the parsed flags for the check command.
type checkFlags struct {
	format              string
	out                 string
	model               string
	minQuality          int
	noFilter            bool
	concurrency         int
	confidenceThreshold float64
	temperature         float64
	maxTokens           int
	callTimeout         time.Duration
	failOn              string
	verbose             bool
}

// filterFlags holds the parsed flags for the filter command.
type filterFlags struct {
	out      string
	minScore int
	noDedup  bool
	verbose  bool
}

// serveFlags holds the parsed flags for the serve command.
type serveFlags struct {
	addr         string
	settingsPath string
	historyPath  string
}

func main() {
	root := &cobra.Command{
		Use:     "arccs",
		Short:   "Check documents for regulatory compliance",
		Long:    "ARCCS classifies a document against a structured regulation set, labeling each regulation COMPLIANT, NON_COMPLIANT, INSUFFICIENT_INFORMATION, or HUMAN_REQUIRED.",
		Version: version,
	}

	var cf checkFlags
	checkCmd := &cobra.Command{
		Use:   "check <regulations.json> <document>",
		Short: "Run a compliance check and produce a report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args[0], args[1], cf)
		},
	}
	f := checkCmd.Flags()
	f.StringVar(&cf.format, "format", "json", "Output format: json or md")
	f.StringVar(&cf.out, "out", "", "Write the report to a file instead of stdout")
	f.StringVar(&cf.model, "model", "", "Provider and model as provider:model (default: ARCCS_MODEL env var, then openai:gpt-4o)")
	f.IntVar(&cf.minQuality, "min-quality", quality.DefaultMinScore, "Minimum quality score; lower-scoring regulations are excluded before checking")
	f.BoolVar(&cf.noFilter, "no-filter", false, "Skip the quality filter and deduplication")
	f.IntVar(&cf.concurrency, "concurrency", 4, "Parallel assessor calls")
	f.Float64Var(&cf.confidenceThreshold, "confidence-threshold", policy.DefaultConfidenceThreshold, "Confidence below this labels a result HUMAN_REQUIRED")
	f.Float64Var(&cf.temperature, "temperature", 0.0, "Model temperature")
	f.IntVar(&cf.maxTokens, "max-tokens", 0, "Maximum response tokens (0 = provider default)")
	f.DurationVar(&cf.callTimeout, "call-timeout", 2*time.Minute, "Timeout per assessor call")
	f.StringVar(&cf.failOn, "fail-on", "", "Exit 2 if the overall status reaches this level (review or non-compliant)")
	f.BoolVar(&cf.verbose, "verbose", false, "Print per-regulation progress to stderr")

	var ff filterFlags
	filterCmd := &cobra.Command{
		Use:   "filter <regulations.json>",
		Short: "Quality-filter and deduplicate a regulation set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(args[0], ff)
		},
	}
	f = filterCmd.Flags()
	f.StringVar(&ff.out, "out", "", "Write the filtered set to a file instead of stdout")
	f.IntVar(&ff.minScore, "min-score", quality.DefaultMinScore, "Minimum quality score to keep a regulation")
	f.BoolVar(&ff.noDedup, "no-dedup", false, "Skip deduplication after filtering")
	f.BoolVar(&ff.verbose, "verbose", false, "Print per-regulation scores to stderr")

	var sf serveFlags
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the compliance HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(sf)
		},
	}
	f = serveCmd.Flags()
	f.StringVar(&sf.addr, "addr", ":8080", "Listen address")
	f.StringVar(&sf.settingsPath, "settings", "settings.json", "Settings file path")
	f.StringVar(&sf.historyPath, "history", "history.json", "Run history file path")

	root.AddCommand(checkCmd, filterCmd, serveCmd)

	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		// cobra already printed the error
		os.Exit(1)
	}
}

func runCheck(regsPath, docPath string, flags checkFlags) error {
	if err := validateCheckFlags(flags); err != nil {
		return codeError(3, "invalid flags: %s", err)
	}

	modelStr := flags.model
	if modelStr == "" {
		modelStr = os.Getenv("ARCCS_MODEL")
	}
	if modelStr == "" {
		modelStr = "openai:gpt-4o"
		fmt.Fprintf(os.Stderr, "WARN: no model configured, using default %s\n", modelStr)
	}

	logVerbose(flags.verbose, "Loading regulations: %s", regsPath)
	regs, err := ingest.LoadRegulations(regsPath)
	if err != nil {
		return codeError(3, "loading regulations: %s", err)
	}

	logVerbose(flags.verbose, "Loading document: %s", docPath)
	doc, err := ingest.LoadDocument(docPath)
	if err != nil {
		return codeError(3, "loading document: %s", err)
	}

	sink := stderrSink(flags.verbose)

	if !flags.noFilter {
		part := quality.Filter(regs, flags.minQuality, sink)
		logVerbose(flags.verbose, "Quality filter kept %d/%d regulation(s)", len(part.Kept), len(regs))
		deduped := dedup.Deduplicate(part.Kept, dedup.DefaultConfig())
		for _, m := range deduped.Log {
			logVerbose(flags.verbose, "Merged %q into %q (%s)", m.MergedName, m.SurvivorName, m.Reason)
		}
		regs = deduped.Regulations
	}
	if len(regs) == 0 {
		return codeError(3, "no regulations left to check after filtering")
	}

	a, err := assessor.New(modelStr, assessor.ModelConfig{
		Temperature: flags.temperature,
		MaxTokens:   flags.maxTokens,
	})
	if err != nil {
		return codeError(4, "creating assessor: %s", err)
	}

	orch := batch.New(a, batch.Options{
		Concurrency:     flags.concurrency,
		CallTimeout:     flags.callTimeout,
		MinQualityScore: flags.minQuality,
		Policy:          policy.Config{ConfidenceThreshold: flags.confidenceThreshold},
	}, sink)

	logVerbose(flags.verbose, "Checking %d regulation(s) with %s", len(regs), modelStr)
	results, err := orch.Run(context.Background(), regs, doc.Text)
	if err != nil {
		var ce *batch.ConfigError
		if errors.As(err, &ce) {
			return codeError(3, "%s", err)
		}
		return codeError(5, "%s", err)
	}

	rep := report.Aggregate(results, time.Now().UTC())

	renderer, err := render.NewRenderer(flags.format)
	if err != nil {
		return codeError(3, "invalid format: %s", err)
	}
	outputBytes, err := renderer.Render(&rep)
	if err != nil {
		return codeError(3, "rendering output: %s", err)
	}

	if err := writeOutput(flags.out, outputBytes); err != nil {
		return codeError(3, "%s", err)
	}

	if flags.failOn != "" {
		if level := statusLevel(rep.OverallStatus); level >= failOnLevel(flags.failOn) {
			return codeError(2, "overall status %s meets or exceeds --fail-on threshold %s", rep.OverallStatus, flags.failOn)
		}
	}

	return nil
}

func runFilter(regsPath string, flags filterFlags) error {
	if flags.minScore < 0 || flags.minScore > 100 {
		return codeError(3, "invalid flags: --min-score must be between 0 and 100, got %d", flags.minScore)
	}

	regs, err := ingest.LoadRegulations(regsPath)
	if err != nil {
		return codeError(3, "loading regulations: %s", err)
	}

	part := quality.Filter(regs, flags.minScore, stderrSink(flags.verbose))

	kept := part.Kept
	var merged []dedup.Merged
	if !flags.noDedup {
		res := dedup.Deduplicate(kept, dedup.DefaultConfig())
		kept, merged = res.Regulations, res.Log
	}

	out := struct {
		Regulations []schema.Regulation `json:"regulations"`
		Stats       quality.Stats       `json:"filter_stats"`
		Merged      []dedup.Merged      `json:"merged,omitempty"`
	}{Regulations: kept, Stats: part.Stats, Merged: merged}
	if out.Regulations == nil {
		out.Regulations = []schema.Regulation{}
	}

	outputBytes, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return codeError(3, "rendering output: %s", err)
	}
	outputBytes = append(outputBytes, '\n')

	fmt.Fprintf(os.Stderr, "Kept %d/%d regulation(s), %d merged as duplicates\n",
		len(kept), part.Stats.Total, len(merged))

	if err := writeOutput(flags.out, outputBytes); err != nil {
		return codeError(3, "%s", err)
	}
	return nil
}

func runServe(flags serveFlags) error {
	log, err := zap.NewProduction()
	if err != nil {
		return codeError(3, "creating logger: %s", err)
	}
	defer log.Sync()

	srv := server.New(log, flags.settingsPath, flags.historyPath)
	httpSrv := &http.Server{
		Addr:              flags.addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", flags.addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return codeError(5, "server: %s", err)
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			return codeError(5, "shutdown: %s", err)
		}
	}
	return nil
}

// logVerbose writes a timestamped message to stderr when verbose mode is enabled.
func logVerbose(verbose bool, format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "INFO: "+format+"\n", args...)
	}
}

// stderrSink prints progress events to stderr when verbose is enabled.
func stderrSink(verbose bool) progress.Sink {
	if !verbose {
		return progress.Noop{}
	}
	return progress.Func(func(ev progress.Event) {
		fmt.Fprintf(os.Stderr, "%s: %s\n", ev.Level, ev.Message)
	})
}

// validateCheckFlags returns an error if any flag value is invalid.
func validateCheckFlags(flags checkFlags) error {
	switch flags.format {
	case "json", "md":
	default:
		return fmt.Errorf("--format must be json or md, got %q", flags.format)
	}

	if flags.failOn != "" {
		switch flags.failOn {
		case "review", "non-compliant":
		default:
			return fmt.Errorf("--fail-on must be review or non-compliant, got %q", flags.failOn)
		}
	}

	if flags.minQuality < 0 || flags.minQuality > 100 {
		return fmt.Errorf("--min-quality must be between 0 and 100, got %d", flags.minQuality)
	}

	if flags.confidenceThreshold < 0 || flags.confidenceThreshold > 1 {
		return fmt.Errorf("--confidence-threshold must be between 0.0 and 1.0, got %g", flags.confidenceThreshold)
	}

	if flags.concurrency < 1 {
		return fmt.Errorf("--concurrency must be >= 1, got %d", flags.concurrency)
	}

	if flags.temperature < 0 || flags.temperature > 2 {
		return fmt.Errorf("--temperature must be between 0.0 and 2.0, got %g", flags.temperature)
	}

	return nil
}

// statusLevel orders overall statuses by severity for --fail-on. The
// aggregator suffixes each status with a count summary, so match on the
// prefix.
func statusLevel(status string) int {
	switch {
	case strings.HasPrefix(status, "NON-COMPLIANT"):
		return 2
	case strings.HasPrefix(status, "REVIEW REQUIRED"):
		return 1
	default:
		return 0
	}
}

func failOnLevel(failOn string) int {
	if failOn == "non-compliant" {
		return 2
	}
	return 1
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Fprintln(os.Stdout)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}
