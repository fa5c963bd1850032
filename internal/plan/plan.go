// Package plan applies a pipeline definition to one run.
package plan

import (
	"log/slog"

	"github.com/dmitriyb/stagegate/internal/config"
	"github.com/dmitriyb/stagegate/internal/gate"
)

// Reasons a stage is skipped.
const (
	ReasonFlagDisabled = "flag disabled"
	ReasonFlagNotSet   = "flag not set"
	ReasonBranchRule   = "branch rule"
)

// Decision is the outcome for one stage.
type Decision struct {
	Stage         string        `json:"stage"`
	Key           gate.StageKey `json:"key"`
	Flag          bool          `json:"flag"`
	Source        string        `json:"source"`
	BranchAllowed bool          `json:"branchAllowed"`
	Run           bool          `json:"run"`
	Reason        string        `json:"reason,omitempty"`
}

// Evaluate decides every stage of def, in definition order. The branch rule
// of a stage is evaluated even when its flag is off so the result can show
// both halves; Run is still the conjunction computed by the gate.
func Evaluate(def *config.Pipeline, cfg gate.StageConfig, ec gate.ExecutionContext, logger *slog.Logger) ([]Decision, error) {
	logger = logger.With("component", "plan")
	decisions := make([]Decision, 0, len(def.Stages))
	for _, s := range def.Stages {
		pred, err := s.Predicate()
		if err != nil {
			return nil, err
		}
		key := s.StageKey()
		d := Decision{
			Stage:         s.Name,
			Key:           key,
			Flag:          gate.IsEnabled(cfg, key),
			Source:        cfg.Source(key).String(),
			BranchAllowed: pred == nil || pred(ec),
			Run:           gate.IsEnabledForContext(cfg, key, ec, pred),
		}
		switch {
		case d.Run:
		case cfg.Source(key) == gate.SourceNone:
			d.Reason = ReasonFlagNotSet
		case !d.Flag:
			d.Reason = ReasonFlagDisabled
		default:
			d.Reason = ReasonBranchRule
		}

		if d.Run {
			logger.Debug("stage enabled", "stage", d.Stage, "key", d.Key, "source", d.Source)
		} else {
			logger.Debug("stage skipped", "stage", d.Stage, "key", d.Key, "reason", d.Reason, "branch", ec.Branch)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// Find returns the decision for the named stage.
func Find(decisions []Decision, stage string) (Decision, bool) {
	for _, d := range decisions {
		if d.Stage == stage {
			return d, true
		}
	}
	return Decision{}, false
}
