// Package param implements interactive parameter updates against an
// elaborated build graph.
//
// Parameters can be set statically in a step's configure.yml, dynamically at
// graph construction time, or interactively through this package. An
// interactive update overwrites one key in a step's parameters mapping and
// regenerates the step's flow-run script so the two never drift apart.
//
// The operation is an update, not an insert: a key that is not already
// defined for a step is reported as skipped, never created. Batch updates
// across all steps are applied sequentially in ascending step order and are
// not transactional across steps; a failure on one step leaves earlier
// updates in place and later steps are still attempted.
package param

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flowparam/internal/graph"
	"flowparam/internal/history"
	"flowparam/internal/runscript"
)

// Status classifies the outcome of an update attempt on one step.
type Status string

const (
	// StatusUpdated means the config was rewritten and the run script
	// regenerated.
	StatusUpdated Status = "updated"
	// StatusSkipped means the key is not defined for the step; nothing was
	// touched.
	StatusSkipped Status = "skipped"
	// StatusFailed means the step could not be fully updated.
	StatusFailed Status = "failed"
)

// ErrUsage indicates a malformed request (missing key/value or targeting).
var ErrUsage = errors.New("invalid update request")

// Request describes one interactive update.
type Request struct {
	Key    string
	Value  string
	StepID *int
	All    bool
}

// Result reports the outcome for a single step.
type Result struct {
	Step     graph.Step
	Status   Status
	OldValue string
	Err      error
}

// Recorder receives an audit entry per attempted step update.
// history write failures never fail the update itself.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (string, error)
}

// Updater applies parameter updates to a build graph.
type Updater struct {
	graph    *graph.Graph
	logger   *slog.Logger
	recorder Recorder
	regen    func(graph.Step, *graph.Document) error
}

// Option configures an Updater.
type Option func(*Updater)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) { u.logger = l }
}

// WithRecorder attaches an audit recorder.
func WithRecorder(r Recorder) Option {
	return func(u *Updater) { u.recorder = r }
}

// WithRegenerator overrides run script regeneration.
func WithRegenerator(fn func(graph.Step, *graph.Document) error) Option {
	return func(u *Updater) { u.regen = fn }
}

// NewUpdater creates an Updater over an open graph handle.
func NewUpdater(g *graph.Graph, opts ...Option) *Updater {
	u := &Updater{
		graph:  g,
		logger: slog.Default(),
		regen:  runscript.Regenerate,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update applies req to its target step set.
//
// All preconditions are checked before any mutation: the request must carry a
// non-empty key and value and exactly one targeting mode, and a concrete step
// id must resolve to an existing step. A *graph.StepNotFoundError therefore
// guarantees nothing was modified.
func (u *Updater) Update(ctx context.Context, req Request) ([]Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var targets []graph.Step
	if req.All {
		targets = u.graph.Steps()
	} else {
		step, err := u.graph.Step(*req.StepID)
		if err != nil {
			return nil, err
		}
		targets = []graph.Step{step}
	}

	results := make([]Result, 0, len(targets))
	for _, step := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := u.updateStep(step, req.Key, req.Value)
		results = append(results, res)

		stepLogger := u.logger.With(slog.Int("step_id", step.ID), slog.String("step", step.Name))
		switch res.Status {
		case StatusUpdated:
			stepLogger.Info("parameter updated", "key", req.Key, "value", req.Value, "old_value", res.OldValue)
		case StatusSkipped:
			stepLogger.Debug("parameter not defined, skipped", "key", req.Key)
		case StatusFailed:
			stepLogger.Error("parameter update failed", "key", req.Key, "error", res.Err)
		}

		u.record(ctx, req, res)
	}

	return results, nil
}

func validate(req Request) error {
	if req.Key == "" {
		return fmt.Errorf("%w: key is required", ErrUsage)
	}
	if req.Value == "" {
		return fmt.Errorf("%w: value is required", ErrUsage)
	}
	if req.All == (req.StepID != nil) {
		return fmt.Errorf("%w: specify exactly one of a step id or all steps", ErrUsage)
	}
	return nil
}

func (u *Updater) updateStep(step graph.Step, key, value string) Result {
	res := Result{Step: step}

	doc, err := graph.LoadDocument(step.ConfigPath())
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	for _, p := range doc.Parameters() {
		if p.Key == key {
			res.OldValue = p.Value
			break
		}
	}

	if err := doc.SetParameter(key, value); err != nil {
		if errors.Is(err, graph.ErrParamAbsent) {
			res.Status = StatusSkipped
			return res
		}
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	if err := doc.Save(); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	if err := u.regen(step, doc); err != nil {
		// The config write already landed; the run script is now stale.
		res.Status = StatusFailed
		res.Err = fmt.Errorf("config updated but run script regeneration failed: %w", err)
		return res
	}

	res.Status = StatusUpdated
	return res
}

func (u *Updater) record(ctx context.Context, req Request, res Result) {
	if u.recorder == nil {
		return
	}
	_, err := u.recorder.Record(ctx, history.Entry{
		StepID:   res.Step.ID,
		StepName: res.Step.Name,
		Key:      req.Key,
		OldValue: res.OldValue,
		NewValue: req.Value,
		Outcome:  string(res.Status),
	})
	if err != nil {
		u.logger.Warn("failed to record parameter history", "error", err)
	}
}

// AnyFailed reports whether any result carries StatusFailed.
func AnyFailed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}
