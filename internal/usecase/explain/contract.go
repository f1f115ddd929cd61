package explain

import "context"

// LLM generates natural-language text. Explanations are a best-effort
// garnish, so callers of this package never see its failures.
type LLM interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
