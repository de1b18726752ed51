// Package thresholds maintains the per-project adaptive decision
// boundaries for the topic-shift action policy, self-adjusting from
// observed false positives and suggestion acceptance.
package thresholds

import (
	"fmt"

	"github.com/recallhq/recall/internal/memory"
)

// Store is the slice of the record store the tuner needs. GetThresholds
// lazily creates a record with defaults on first access.
type Store interface {
	GetThresholds(project string) (*memory.Thresholds, error)
	PutThresholds(t *memory.Thresholds) error
}

// Recalibration policy constants: minimum sample sizes before reacting,
// step sizes, and the caps/floors that keep thresholds sane.
const (
	minStashSamples   = 5
	confidentSamples  = 10
	highFalsePositive = 0.20
	lowFalsePositive  = 0.05
	highAcceptance    = 0.60
	lowAcceptance     = 0.20
	trustStepUp       = 0.05
	trustStepDown     = 0.02
	askStepUp         = 0.05
	askStepDown       = 0.02
	trustCeiling      = 0.95
	trustFloor        = 0.60
	askCeiling        = 0.60
	askFloor          = 0.20
	minThresholdGap   = 0.10
)

// Tuner reads and adjusts per-project thresholds.
//
// Each recorder is a read-modify-write against one row. Concurrent host
// processes racing on the same project can lose a recalibration step; the
// store serializes individual writes, so the worst case is a slightly
// stale threshold, not corruption.
type Tuner struct {
	store Store
}

// New creates a Tuner.
func New(store Store) *Tuner {
	return &Tuner{store: store}
}

// Get returns the project's thresholds, created with defaults on first
// access.
func (t *Tuner) Get(project string) (*memory.Thresholds, error) {
	return t.store.GetThresholds(project)
}

// RecordAutoStash counts an automatic segmentation event.
func (t *Tuner) RecordAutoStash(project string) (*memory.Thresholds, error) {
	return t.record(project, func(th *memory.Thresholds) {
		th.AutoStashCount++
	}, false)
}

// RecordFalsePositive counts a user-reported wrong automatic segmentation
// and recalibrates.
func (t *Tuner) RecordFalsePositive(project string) (*memory.Thresholds, error) {
	return t.record(project, func(th *memory.Thresholds) {
		th.FalsePositiveCount++
	}, true)
}

// RecordSuggestionShown counts a surfaced segmentation suggestion and
// recalibrates.
func (t *Tuner) RecordSuggestionShown(project string) (*memory.Thresholds, error) {
	return t.record(project, func(th *memory.Thresholds) {
		th.SuggestionShown++
	}, true)
}

// RecordSuggestionAccepted counts an accepted suggestion and recalibrates.
func (t *Tuner) RecordSuggestionAccepted(project string) (*memory.Thresholds, error) {
	return t.record(project, func(th *memory.Thresholds) {
		th.SuggestionAccepted++
	}, true)
}

func (t *Tuner) record(project string, apply func(*memory.Thresholds), recalibrate bool) (*memory.Thresholds, error) {
	th, err := t.store.GetThresholds(project)
	if err != nil {
		return nil, fmt.Errorf("thresholds: load %s: %w", project, err)
	}
	apply(th)
	if recalibrate {
		Recalibrate(th)
	}
	th.UpdatedAt = memory.Now()
	if err := t.store.PutThresholds(th); err != nil {
		return nil, fmt.Errorf("thresholds: persist %s: %w", project, err)
	}
	return th, nil
}

// Recalibrate adjusts the thresholds from the current counters and
// reports whether either threshold changed. Pure function of th.
//
// Trust moves on auto-stash feedback: a high false-positive rate raises it
// (more conservative), a consistently low one lowers it (more autonomy).
// Ask moves on suggestion feedback: high acceptance lowers it (show more),
// low acceptance raises it (show less). Both require minimum sample sizes,
// and lowering additionally requires the larger confident sample. The
// ask < trust invariant is enforced with a minimum gap.
func Recalibrate(th *memory.Thresholds) bool {
	oldAsk, oldTrust := th.AskThreshold, th.TrustThreshold

	if th.AutoStashCount >= minStashSamples {
		rate := float64(th.FalsePositiveCount) / float64(th.AutoStashCount)
		switch {
		case rate > highFalsePositive:
			th.TrustThreshold = min(th.TrustThreshold+trustStepUp, trustCeiling)
		case rate < lowFalsePositive && th.AutoStashCount >= confidentSamples:
			th.TrustThreshold = max(th.TrustThreshold-trustStepDown, trustFloor)
		}
	}

	if th.SuggestionShown >= minStashSamples {
		rate := float64(th.SuggestionAccepted) / float64(th.SuggestionShown)
		switch {
		case rate > highAcceptance:
			th.AskThreshold = max(th.AskThreshold-askStepDown, askFloor)
		case rate < lowAcceptance && th.SuggestionShown >= confidentSamples:
			th.AskThreshold = min(th.AskThreshold+askStepUp, askCeiling)
		}
	}

	if th.AskThreshold >= th.TrustThreshold {
		th.AskThreshold = th.TrustThreshold - minThresholdGap
	}

	return th.AskThreshold != oldAsk || th.TrustThreshold != oldTrust
}
