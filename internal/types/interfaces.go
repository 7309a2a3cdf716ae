package types

import (
	"context"
)

// LLMClient is the boundary to the external generation service. Failure and
// empty responses are equivalent from the pipeline's point of view: both mean
// "no suggestion".
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CustomMetricProvider is the optional half of the component registration
// contract: components that expose it contribute extra metrics to each
// snapshot. Absence is not an error.
type CustomMetricProvider interface {
	CustomMetrics() map[string]float64
}
