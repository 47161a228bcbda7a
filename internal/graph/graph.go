// Package graph provides read/write access to an elaborated build graph's
// on-disk metadata store. The store is a hidden directory produced by the
// elaboration process, with one subdirectory per step (named "<id>-<name>")
// holding the step's configure.yml and its generated flow-run script.
package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const (
	// MetadataDirName is the hidden directory created by elaboration.
	MetadataDirName = ".flow"

	// ConfigFileName is the per-step configuration document.
	ConfigFileName = "configure.yml"

	// RunScriptName is the generated per-step run script.
	RunScriptName = "flow-run"

	// HistoryDBName is the parameter edit history database.
	HistoryDBName = "flowparam.db"
)

// ErrNotElaborated indicates the metadata store does not exist. The graph
// must be elaborated by the flow tool before parameters can be edited.
var ErrNotElaborated = errors.New("build graph is not elaborated")

// StepNotFoundError indicates a requested step id is absent from the graph.
type StepNotFoundError struct {
	ID int
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %d not found in build graph", e.ID)
}

// Step identifies one stage of the elaborated pipeline.
type Step struct {
	ID   int
	Name string
	Dir  string
}

// ConfigPath returns the location of the step's configure.yml.
func (s Step) ConfigPath() string {
	return filepath.Join(s.Dir, ConfigFileName)
}

// RunScriptPath returns the location of the step's generated run script.
func (s Step) RunScriptPath() string {
	return filepath.Join(s.Dir, RunScriptName)
}

// Graph is a handle to an elaborated build graph's metadata store.
type Graph struct {
	root  string
	steps []Step
}

var stepDirPattern = regexp.MustCompile(`^(\d+)-(.+)$`)

// Open validates the metadata store at root and enumerates its steps.
// Steps are ordered ascending by numeric id.
func Open(root string) (*Graph, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve graph root %q: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNotElaborated, absRoot)
		}
		return nil, fmt.Errorf("stat graph root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("graph root %s is not a directory", absRoot)
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, fmt.Errorf("read graph root: %w", err)
	}

	seen := make(map[int]string)
	var steps []Step
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := stepDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate step id %d in graph (%s and %s)", id, prev, entry.Name())
		}
		seen[id] = entry.Name()

		step := Step{ID: id, Name: m[2], Dir: filepath.Join(absRoot, entry.Name())}
		if _, err := os.Stat(step.ConfigPath()); err != nil {
			return nil, fmt.Errorf("step %q has no %s: %w", entry.Name(), ConfigFileName, err)
		}
		steps = append(steps, step)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].ID < steps[j].ID })

	return &Graph{root: absRoot, steps: steps}, nil
}

// Root returns the absolute path of the metadata store.
func (g *Graph) Root() string {
	return g.root
}

// Steps returns all steps, ascending by id.
func (g *Graph) Steps() []Step {
	out := make([]Step, len(g.steps))
	copy(out, g.steps)
	return out
}

// Step returns the step with the given id.
func (g *Graph) Step(id int) (Step, error) {
	for _, s := range g.steps {
		if s.ID == id {
			return s, nil
		}
	}
	return Step{}, &StepNotFoundError{ID: id}
}

// HistoryDBPath returns the location of the parameter history database.
func (g *Graph) HistoryDBPath() string {
	return filepath.Join(g.root, HistoryDBName)
}
