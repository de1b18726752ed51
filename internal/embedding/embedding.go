// Package embedding defines the seam to an external embedding provider.
package embedding

import "context"

// Provider turns text into a fixed-length vector. Implementations live
// outside this repo (the host wires one in); callers must tolerate a nil
// provider and skip the vector contribution.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
