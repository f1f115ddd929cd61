package intent

import "context"

// LLM is the text-understanding provider contract. May fail or time out;
// the parser owns retry and fallback.
type LLM interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
