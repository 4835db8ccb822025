// Package agent implements the participant shell described in
// SPEC_FULL.md §4.6: a stable identity (role, specialties, system
// prompt, priority keywords) wrapped around a pluggable language model,
// tracking the reputation and response-time history the scheduler uses
// for preemption and leader-election decisions. Grounded on the generic
// Agent[T]/Model[T] split in ai/agent.go, simplified from that file's
// photon/quasar consensus phases down to the single Speak call this
// system's scheduler needs, and on orchestrator.py's CelayaAgent for the
// reputation/response-time bookkeeping.
package agent

import (
	"context"
	"sync"
	"time"
)

// Turn is one exchange in a conversation handed to a Model as context.
type Turn struct {
	Speaker string
	Content string
}

// Identity is an agent's static configuration: who it is, what it's for,
// and which keywords should make the scheduler treat its messages as
// urgent (SPEC_FULL.md §3).
type Identity struct {
	ID                 string
	Role               string
	Specialties        []string
	SystemPrompt       string
	PriorityKeywords   []string
	InterruptThreshold int // priority of the interrupt raised for this agent when one of its PriorityKeywords appears in a prompt; zero means the scheduler's PreemptThreshold
}

// Model produces a response for a prompt, given the agent's system
// prompt and prior conversation turns. Implementations wrap a concrete
// backend (HTTP API, local process, or a test double).
type Model interface {
	Generate(ctx context.Context, systemPrompt, prompt string, history []Turn) (string, error)
}

// maxResponseSamples bounds the response-time rolling window, mirroring
// ledger's bounded trust history.
const maxResponseSamples = 50

// Agent is a scheduler participant: an Identity driven by a Model, with
// reputation and response-time tracking the scheduler reads to make
// preemption and leader-election decisions.
type Agent struct {
	identity Identity
	model    Model

	mu            sync.Mutex
	reputation    float64
	responseTimes []time.Duration
}

// New builds an Agent with reputation seeded at 1.0 (full trust).
func New(identity Identity, model Model) *Agent {
	return &Agent{identity: identity, model: model, reputation: 1.0}
}

// ID returns the agent's stable identifier.
func (a *Agent) ID() string { return a.identity.ID }

// Identity returns the agent's static configuration.
func (a *Agent) Identity() Identity { return a.identity }

// Speak asks the underlying Model for a response to prompt, given the
// conversation so far, and records the elapsed latency as a response-time
// sample.
func (a *Agent) Speak(ctx context.Context, prompt string, history []Turn) (string, error) {
	start := time.Now()
	resp, err := a.model.Generate(ctx, a.identity.SystemPrompt, prompt, history)
	a.recordResponseTime(time.Since(start))
	return resp, err
}

func (a *Agent) recordResponseTime(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responseTimes = append(a.responseTimes, d)
	if len(a.responseTimes) > maxResponseSamples {
		a.responseTimes = a.responseTimes[len(a.responseTimes)-maxResponseSamples:]
	}
}

// MeanResponseTime returns the average of recorded response latencies, or
// zero if none have been recorded yet.
func (a *Agent) MeanResponseTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.responseTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range a.responseTimes {
		sum += d
	}
	return sum / time.Duration(len(a.responseTimes))
}

// Reputation returns the agent's current reputation score.
func (a *Agent) Reputation() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reputation
}

// AdjustReputation nudges the agent's reputation by delta, clamped to
// [0, 1]. Negative deltas model a timeout or error; small negative deltas
// model a slow-but-completed turn (SPEC_FULL.md supplemented features).
func (a *Agent) AdjustReputation(delta float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reputation += delta
	if a.reputation < 0 {
		a.reputation = 0
	}
	if a.reputation > 1 {
		a.reputation = 1
	}
}

// HasPriorityKeyword reports whether text contains one of the agent's
// configured priority keywords, used by the scheduler's urgency scan.
func (a *Agent) HasPriorityKeyword(text string) bool {
	for _, kw := range a.identity.PriorityKeywords {
		if containsFold(text, kw) {
			return true
		}
	}
	return false
}
