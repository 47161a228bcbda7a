package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"flowparam/internal/graph"
	"flowparam/internal/history"
	"flowparam/internal/log"
	"flowparam/internal/param"
	"flowparam/internal/runscript"
	"flowparam/internal/storage"
	"flowparam/internal/tui/browse"
)

func runParamUpdate(args []string) int {
	var key, value, graphPath string
	var stepID int
	var all bool

	fs := flag.NewFlagSet("param update", flag.ContinueOnError)
	fs.StringVar(&key, "key", "", "Parameter key to update")
	fs.StringVar(&key, "k", "", "Parameter key to update (shorthand)")
	fs.StringVar(&value, "value", "", "New parameter value")
	fs.StringVar(&value, "v", "", "New parameter value (shorthand)")
	fs.IntVar(&stepID, "step", 0, "Step id to update")
	fs.IntVar(&stepID, "s", 0, "Step id to update (shorthand)")
	fs.BoolVar(&all, "all", false, "Update every step in the graph")
	fs.StringVar(&graphPath, "graph", "", "Path to the graph metadata directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	stepSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "step" || f.Name == "s" {
			stepSet = true
		}
	})

	// Usage problems are correctable interactively: show help, exit clean.
	if key == "" || value == "" || (!stepSet && !all) {
		printParamUpdateHelp()
		return 0
	}
	if stepSet && all {
		fmt.Println("param update: use either --step or --all, not both")
		printParamUpdateHelp()
		return 0
	}

	g, code := openGraph(graphPath)
	if g == nil {
		return code
	}

	log.Setup(os.Getenv("FLOWPARAM_LOG_LEVEL"))
	logger := log.WithRun(uuid.NewString()).With("component", "param")

	ctx := context.Background()
	opts := []param.Option{param.WithLogger(logger)}

	db, err := storage.OpenSQLite(ctx, g.HistoryDBPath())
	if err != nil {
		// The audit trail observes edits; it never blocks them.
		logger.Warn("history database unavailable", "path", g.HistoryDBPath(), "error", err)
	} else {
		defer db.Close()
		opts = append(opts, param.WithRecorder(history.NewStore(db)))
	}

	req := param.Request{Key: key, Value: value, All: all}
	if stepSet {
		req.StepID = &stepID
	}

	results, err := param.NewUpdater(g, opts...).Update(ctx, req)
	if err != nil {
		var notFound *graph.StepNotFoundError
		switch {
		case errors.As(err, &notFound):
			fmt.Fprintf(os.Stderr, "Error: %v\n", notFound)
			return 1
		case errors.Is(err, param.ErrUsage):
			printParamUpdateHelp()
			return 0
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	for _, res := range results {
		switch res.Status {
		case param.StatusUpdated:
			fmt.Printf("Updated parameter %q = %q for step %q\n", key, value, fmt.Sprint(res.Step.ID))
		case param.StatusSkipped:
			fmt.Printf("Parameter %q is not defined for step %q (skipped)\n", key, fmt.Sprint(res.Step.ID))
		case param.StatusFailed:
			fmt.Fprintf(os.Stderr, "Failed to update parameter %q for step %q: %v\n", key, fmt.Sprint(res.Step.ID), res.Err)
		}
	}

	if param.AnyFailed(results) {
		return 1
	}
	return 0
}

func runParamList(args []string) int {
	var graphPath string
	var stepID int
	var jsonOut bool

	fs := flag.NewFlagSet("param list", flag.ContinueOnError)
	fs.IntVar(&stepID, "step", 0, "Limit output to one step id")
	fs.IntVar(&stepID, "s", 0, "Limit output to one step id (shorthand)")
	fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	fs.StringVar(&graphPath, "graph", "", "Path to the graph metadata directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	stepSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "step" || f.Name == "s" {
			stepSet = true
		}
	})

	g, code := openGraph(graphPath)
	if g == nil {
		return code
	}

	steps, code := selectSteps(g, stepSet, stepID)
	if steps == nil {
		return code
	}

	type stepParams struct {
		StepID     int               `json:"step_id"`
		StepName   string            `json:"step_name"`
		Parameters map[string]string `json:"parameters"`
	}

	var out []stepParams
	for _, step := range steps {
		doc, err := graph.LoadDocument(step.ConfigPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}

		if jsonOut {
			params := make(map[string]string)
			for _, p := range doc.Parameters() {
				params[p.Key] = p.Value
			}
			out = append(out, stepParams{StepID: step.ID, StepName: step.Name, Parameters: params})
			continue
		}

		fmt.Printf("Step %d-%s\n", step.ID, step.Name)
		params := doc.Parameters()
		if len(params) == 0 {
			fmt.Println("  (no parameters)")
		}
		for _, p := range params {
			fmt.Printf("  %s = %s\n", p.Key, p.Value)
		}
		fmt.Println()
	}

	if jsonOut {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	}
	return 0
}

func runParamVerify(args []string) int {
	var graphPath string
	var stepID int
	var jsonOut bool

	fs := flag.NewFlagSet("param verify", flag.ContinueOnError)
	fs.IntVar(&stepID, "step", 0, "Limit the check to one step id")
	fs.IntVar(&stepID, "s", 0, "Limit the check to one step id (shorthand)")
	fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	fs.StringVar(&graphPath, "graph", "", "Path to the graph metadata directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	stepSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "step" || f.Name == "s" {
			stepSet = true
		}
	})

	g, code := openGraph(graphPath)
	if g == nil {
		return code
	}

	steps, code := selectSteps(g, stepSet, stepID)
	if steps == nil {
		return code
	}

	type verifyResult struct {
		StepID    int    `json:"step_id"`
		StepName  string `json:"step_name"`
		RunScript string `json:"run_script"`
	}

	var out []verifyResult
	allOK := true
	for _, step := range steps {
		status, err := runscript.Verify(step)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if status != runscript.StatusOK {
			allOK = false
		}
		if jsonOut {
			out = append(out, verifyResult{StepID: step.ID, StepName: step.Name, RunScript: string(status)})
			continue
		}
		fmt.Printf("%d-%s: %s\n", step.ID, step.Name, status)
	}

	if jsonOut {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	}

	if !allOK {
		return 1
	}
	return 0
}

func runParamHistory(args []string) int {
	var graphPath string
	var limit int
	var jsonOut bool

	fs := flag.NewFlagSet("param history", flag.ContinueOnError)
	fs.IntVar(&limit, "limit", 20, "Maximum number of entries to show")
	fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	fs.StringVar(&graphPath, "graph", "", "Path to the graph metadata directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	g, code := openGraph(graphPath)
	if g == nil {
		return code
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, g.HistoryDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history database: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := history.NewStore(db).Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if jsonOut {
		type historyEntry struct {
			ID        string `json:"id"`
			StepID    int    `json:"step_id"`
			StepName  string `json:"step_name"`
			Key       string `json:"key"`
			OldValue  string `json:"old_value,omitempty"`
			NewValue  string `json:"new_value"`
			Outcome   string `json:"outcome"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]historyEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, historyEntry(e))
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No parameter edits recorded.")
		return 0
	}
	for _, e := range entries {
		fmt.Printf("%s  step %d-%s  %s: %q -> %q  (%s)\n",
			e.CreatedAt, e.StepID, e.StepName, e.Key, e.OldValue, e.NewValue, e.Outcome)
	}
	return 0
}

func runParamBrowse(args []string) int {
	var graphPath string

	fs := flag.NewFlagSet("param browse", flag.ContinueOnError)
	fs.StringVar(&graphPath, "graph", "", "Path to the graph metadata directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	g, code := openGraph(graphPath)
	if g == nil {
		return code
	}

	p := tea.NewProgram(browse.New(g.Root()))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// openGraph resolves and opens the metadata store. Returns (nil, exitCode)
// when the graph cannot be opened; the error is already reported.
func openGraph(graphPath string) (*graph.Graph, int) {
	root, err := resolveGraphRoot(graphPath)
	if err == nil {
		var g *graph.Graph
		g, err = graph.Open(root)
		if err == nil {
			return g, 0
		}
	}

	if errors.Is(err, graph.ErrNotElaborated) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Elaborate the build graph with your flow tool, then retry.")
		return nil, 1
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return nil, 1
}

// resolveGraphRoot accepts either the metadata directory itself or a project
// directory containing one; with no argument it discovers the store from the
// working directory upward.
func resolveGraphRoot(graphPath string) (string, error) {
	if graphPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return graph.Discover(cwd)
	}

	if filepath.Base(graphPath) == graph.MetadataDirName {
		return graphPath, nil
	}
	nested := filepath.Join(graphPath, graph.MetadataDirName)
	if info, err := os.Stat(nested); err == nil && info.IsDir() {
		return nested, nil
	}
	return graphPath, nil
}

func selectSteps(g *graph.Graph, stepSet bool, stepID int) ([]graph.Step, int) {
	if !stepSet {
		return g.Steps(), 0
	}
	step, err := g.Step(stepID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, 1
	}
	return []graph.Step{step}, 0
}
