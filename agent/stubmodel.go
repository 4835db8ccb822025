package agent

import "context"

// StubModel is a deterministic, in-process Model used by tests that
// don't need gomock's call expectations — just a canned or
// function-driven response.
type StubModel struct {
	// Reply is returned verbatim if Fn is nil.
	Reply string
	// Err is returned alongside Reply if non-nil.
	Err error
	// Fn, if set, overrides Reply/Err entirely.
	Fn func(ctx context.Context, systemPrompt, prompt string, history []Turn) (string, error)
}

// Generate implements Model.
func (s *StubModel) Generate(ctx context.Context, systemPrompt, prompt string, history []Turn) (string, error) {
	if s.Fn != nil {
		return s.Fn(ctx, systemPrompt, prompt, history)
	}
	return s.Reply, s.Err
}
