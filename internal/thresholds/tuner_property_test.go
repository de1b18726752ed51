package thresholds_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/recallhq/recall/internal/thresholds"
)

// ask < trust holds after any sequence of feedback events, and both
// thresholds stay inside their caps.
func TestRecalibrationInvariantProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tuner := thresholds.New(newFakeStore())

		n := rapid.IntRange(1, 200).Draw(rt, "events")
		for i := 0; i < n; i++ {
			var err error
			switch rapid.IntRange(0, 3).Draw(rt, "event") {
			case 0:
				_, err = tuner.RecordAutoStash("p")
			case 1:
				_, err = tuner.RecordFalsePositive("p")
			case 2:
				_, err = tuner.RecordSuggestionShown("p")
			default:
				_, err = tuner.RecordSuggestionAccepted("p")
			}
			if err != nil {
				rt.Fatalf("record error = %v", err)
			}

			th, err := tuner.Get("p")
			if err != nil {
				rt.Fatalf("Get() error = %v", err)
			}
			if th.AskThreshold >= th.TrustThreshold {
				rt.Fatalf("invariant broken after %d events: ask %v >= trust %v",
					i+1, th.AskThreshold, th.TrustThreshold)
			}
			if th.TrustThreshold > 0.95 || th.TrustThreshold < 0.50 {
				rt.Fatalf("trust %v out of range", th.TrustThreshold)
			}
			if th.AskThreshold > 0.60 || th.AskThreshold < 0.10 {
				rt.Fatalf("ask %v out of range", th.AskThreshold)
			}
		}
	})
}
