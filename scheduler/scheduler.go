// Package scheduler implements the turn-taking orchestrator described in
// SPEC_FULL.md §4.6 — the largest single component in this system.
// Grounded on celaya-agents/orchestrator.py's Orchestrator/CelayaAgent
// classes: round-robin turn order, a priority heap of pending interrupts
// bounded by MaxInterruptDepth to prevent livelock, a paused-agent stack
// so a preempted turn resumes exactly where it left off, timeout counters
// that trigger leader re-election (error counts lower an agent's standing
// in that election), and an urgency-keyword scan
// over every prompt that can itself raise an interrupt.
package scheduler

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lyra-sh/lyra/agent"
	"github.com/lyra-sh/lyra/bus"
	"github.com/lyra-sh/lyra/consensus"
	"github.com/lyra-sh/lyra/internal/logging"
)

// Tuning constants, grounded on orchestrator.py's module-level constants.
const (
	// MinSlice is the minimum time a turn runs before an interrupt can
	// preempt it, so two urgent requests can't thrash the scheduler.
	MinSlice = 1500 * time.Millisecond
	// MaxTurn is the hard ceiling on a single turn before it's treated
	// as a timeout.
	MaxTurn = 5000 * time.Millisecond
	// PreemptThreshold is the minimum interrupt priority that can cut a
	// turn short before MinSlice has elapsed.
	PreemptThreshold = 90
	// MaxInterruptDepth bounds how many turns can be nested via
	// preemption before further interrupts are refused outright.
	MaxInterruptDepth = 3
	// TimeoutsBeforeReelection is how many consecutive timeouts from the
	// current leader trigger a new leader election.
	TimeoutsBeforeReelection = 2
)

// DefaultInterruptKeywords flags a prompt as urgent when present,
// case-insensitively, mirroring orchestrator.py's INTERRUPT_KEYWORDS.
var DefaultInterruptKeywords = []string{
	"urgent", "emergency", "critical", "production down", "security breach",
}

// TranscriptEntry records one completed turn for post-hoc review
// (SPEC_FULL.md supplemented features).
type TranscriptEntry struct {
	Timestamp time.Time
	AgentID   string
	Prompt    string
	Response  string
	Err       error
	Preempted bool
	Resumed   bool
}

type participant struct {
	agent        *agent.Agent
	timeoutCount int
	errorCount   int
}

// interruptRequest is one entry in the pending-interrupt priority heap.
type interruptRequest struct {
	requesterID string
	priority    int
	reason      string
	submittedAt time.Time
}

type interruptHeap []interruptRequest

func (h interruptHeap) Len() int { return len(h) }
func (h interruptHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // max-heap on priority
	}
	return h[i].submittedAt.Before(h[j].submittedAt)
}
func (h interruptHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *interruptHeap) Push(x any)   { *h = append(*h, x.(interruptRequest)) }
func (h *interruptHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler drives turn-taking across a roster of agents, honoring
// interrupts, tracking reliability, and delegating votes to a consensus
// Engine.
type Scheduler struct {
	bus       *bus.Bus
	consensus *consensus.Engine
	log       logging.Logger
	keywords  []string

	mu                sync.Mutex
	order             []string // round-robin agent order
	participants      map[string]*participant
	turnIndex         int
	leaderID          string
	pausedStack       []string // agent ids preempted, most recent last
	interrupts        interruptHeap
	currentSpeaker    string
	currentTurnStart  time.Time
	transcript        []TranscriptEntry
	running           bool
	transcriptPath    string
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithTranscriptPath enables a best-effort JSON transcript dump on Stop.
// Without it, Stop simply discards the in-memory transcript.
func WithTranscriptPath(path string) Option {
	return func(s *Scheduler) { s.transcriptPath = path }
}

// New builds a Scheduler over b, delegating consensus ballots to ce. A
// nil logger defaults to a no-op logger.
func New(b *bus.Bus, ce *consensus.Engine, log logging.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logging.NoOp()
	}
	s := &Scheduler{
		bus:          b,
		consensus:    ce,
		log:          log,
		keywords:     append([]string(nil), DefaultInterruptKeywords...),
		participants: make(map[string]*participant),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAgent enrolls a into the round-robin roster and gives it a private
// mailbox subscribed to its own inbox topic, so direct messages sent to it
// (SendDirect, or another agent addressing it) accumulate for Turn to
// drain as prompt context (SPEC_FULL.md §4.6).
func (s *Scheduler) AddAgent(a *agent.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := a.ID()
	if _, exists := s.participants[id]; exists {
		return
	}
	s.participants[id] = &participant{agent: a}
	s.order = append(s.order, id)
	sort.Strings(s.order) // deterministic order for a given roster
	if s.leaderID == "" {
		s.leaderID = id
	}

	s.bus.CreateMailbox(id, true)
	if err := s.bus.Subscribe(bus.AgentInbox(id), id); err != nil {
		s.log.Warn("failed to subscribe agent inbox", zap.String("agent", id), zap.Error(err))
	}
}

// Leader returns the currently elected leader's agent id.
func (s *Scheduler) Leader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderID
}

// RequestInterrupt queues an interrupt from requesterID at priority.
// Once MaxInterruptDepth concurrent preemptions are already in effect,
// further requests are refused to prevent livelock.
func (s *Scheduler) RequestInterrupt(requesterID, reason string, priority int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pausedStack) >= MaxInterruptDepth {
		s.log.Warn("interrupt refused: max depth reached",
			zap.String("requester", requesterID), zap.Int("depth", len(s.pausedStack)))
		return false
	}
	heap.Push(&s.interrupts, interruptRequest{
		requesterID: requesterID,
		priority:    priority,
		reason:      reason,
		submittedAt: time.Now(),
	})
	return true
}

// scanForInterrupt raises an implicit interrupt when prompt contains one
// of the scheduler's global urgency keywords, or one of a participating
// agent's own specialty keywords (SPEC_FULL.md §4.6: "plus per-agent
// specialty keywords"), at a priority that always clears PreemptThreshold
// unless the agent declares its own InterruptThreshold.
func (s *Scheduler) scanForInterrupt(requesterID, prompt string) {
	lower := strings.ToLower(prompt)
	for _, kw := range s.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			s.RequestInterrupt(requesterID, "urgency keyword: "+kw, PreemptThreshold+1)
			return
		}
	}

	s.mu.Lock()
	participants := make([]*participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p)
	}
	s.mu.Unlock()

	for _, p := range participants {
		if p.agent.HasPriorityKeyword(prompt) {
			threshold := p.agent.Identity().InterruptThreshold
			if threshold <= 0 {
				threshold = PreemptThreshold
			}
			s.RequestInterrupt(p.agent.ID(), "agent specialty keyword", threshold)
			return
		}
	}
}

// nextTurnAgent picks the agent id for the next turn. The interrupt layer
// wins over round robin as soon as either the elapsed slice has cleared
// MinSlice or the pending interrupt's own priority clears
// PreemptThreshold outright (SPEC_FULL.md §4.6: "if slice_elapsed >=
// MIN_SLICE or top_priority >= PREEMPT_THRESHOLD"). Failing that, a
// resumed paused agent takes the next turn (the "advancement rule":
// non-empty pause stack resumes before plain rotation continues);
// otherwise round robin advances as usual.
func (s *Scheduler) nextTurnAgent(elapsedOnCurrent time.Duration) (id string, isResume, isPreempt bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.interrupts) > 0 {
		top := s.interrupts[0]
		if elapsedOnCurrent >= MinSlice || top.priority >= PreemptThreshold {
			heap.Pop(&s.interrupts)
			// If the interrupter is also who round robin would have
			// picked next, skip past them now so the later plain-rotation
			// turn doesn't replay them a second time.
			if len(s.order) > 0 && top.requesterID == s.order[s.turnIndex%len(s.order)] {
				s.turnIndex++
			}
			return top.requesterID, false, true
		}
	}

	if len(s.pausedStack) > 0 {
		id = s.pausedStack[len(s.pausedStack)-1]
		s.pausedStack = s.pausedStack[:len(s.pausedStack)-1]
		return id, true, false
	}

	if len(s.order) == 0 {
		return "", false, false
	}
	id = s.order[s.turnIndex%len(s.order)]
	s.turnIndex++
	return id, false, false
}

// Turn runs a single turn for prompt: the scheduler picks who speaks
// (honoring any pending interrupt or paused resumption), drains that
// agent's private mailbox into prompt context, invokes the agent,
// broadcasts the response on the global bus, updates reputation, and
// advances the token (SPEC_FULL.md §4.6).
func (s *Scheduler) Turn(ctx context.Context, prompt string) TranscriptEntry {
	s.scanForInterrupt("system", prompt)

	s.mu.Lock()
	elapsed := time.Since(s.currentTurnStart)
	previousSpeaker := s.currentSpeaker
	s.mu.Unlock()

	speakerID, resumed, preempted := s.nextTurnAgent(elapsed)
	if speakerID == "" {
		return TranscriptEntry{Timestamp: time.Now()}
	}

	if preempted && previousSpeaker != "" && previousSpeaker != speakerID {
		s.mu.Lock()
		s.pausedStack = append(s.pausedStack, previousSpeaker)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.currentSpeaker = speakerID
	s.currentTurnStart = time.Now()
	p := s.participants[speakerID]
	s.mu.Unlock()
	if p == nil {
		return TranscriptEntry{Timestamp: time.Now(), AgentID: speakerID}
	}

	history := s.drainMailbox(speakerID)

	turnCtx, cancel := context.WithTimeout(ctx, MaxTurn)
	defer cancel()

	start := time.Now()
	resp, err := p.agent.Speak(turnCtx, prompt, history)
	entry := TranscriptEntry{
		Timestamp: start,
		AgentID:   speakerID,
		Prompt:    prompt,
		Response:  resp,
		Err:       err,
		Preempted: preempted,
		Resumed:   resumed,
	}

	s.bus.Publish(ctx, bus.TopicGlobal, entry, speakerID)
	s.recordOutcome(speakerID, err, turnCtx.Err() != nil)
	s.appendTranscript(entry)

	return entry
}

// drainMailbox pops every message currently queued in speakerID's private
// mailbox, converting each into a conversation turn for Speak's history
// argument, so a direct message sent to the agent while it was waiting is
// surfaced as context rather than silently discarded.
func (s *Scheduler) drainMailbox(speakerID string) []agent.Turn {
	var history []agent.Turn
	for {
		msg, ok := s.bus.TryNextMessage(speakerID)
		if !ok {
			break
		}
		history = append(history, agent.Turn{Speaker: msg.Sender, Content: fmt.Sprint(msg.Payload)})
	}
	return history
}

func (s *Scheduler) recordOutcome(agentID string, err error, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[agentID]
	if !ok {
		return
	}

	switch {
	case timedOut:
		p.timeoutCount++
		p.agent.AdjustReputation(-0.2)
		if agentID == s.leaderID && p.timeoutCount >= TimeoutsBeforeReelection {
			s.electLeaderLocked()
		}
	case err != nil:
		p.errorCount++
		p.agent.AdjustReputation(-0.1)
	default:
		p.timeoutCount = 0
		if p.agent.MeanResponseTime() > MinSlice {
			// Completed, but slow: a small reputation penalty rather
			// than the full timeout penalty (SPEC_FULL.md supplemented
			// features, grounded on orchestrator.py's response-time decay).
			p.agent.AdjustReputation(-0.05)
		} else {
			p.agent.AdjustReputation(0.02)
		}
	}
}

// electLeaderLocked must be called with s.mu held. It picks the
// participant with the highest score, where score is reputation minus 0.1
// per recorded timeout or error, breaking ties by lowest id for
// determinism.
func (s *Scheduler) electLeaderLocked() {
	var best string
	var bestScore float64 = -1
	for _, id := range s.order {
		p := s.participants[id]
		score := p.agent.Reputation() - float64(p.timeoutCount+p.errorCount)*0.1
		if score > bestScore || (score == bestScore && id < best) {
			bestScore = score
			best = id
		}
	}
	if best != "" && best != s.leaderID {
		s.log.Info("leader re-elected", zap.String("previous", s.leaderID), zap.String("new", best))
		s.leaderID = best
	}
}

func (s *Scheduler) appendTranscript(e TranscriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, e)
}

// Transcript returns a copy of every recorded turn.
func (s *Scheduler) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptEntry(nil), s.transcript...)
}

// SendDirect publishes payload straight into target's private mailbox,
// bypassing the turn order entirely — grounded on orchestrator.py's
// direct_message, used for side-channel coordination (e.g. the kernel
// announcing a boot decision to one agent). The message sits in the
// mailbox until that agent's next Turn drains it into context.
func (s *Scheduler) SendDirect(ctx context.Context, sender, target string, payload any) {
	s.bus.Publish(ctx, bus.AgentInbox(target), payload, sender)
}

// ProposeBallot opens a consensus round through the wired Engine, for
// callers (typically the current leader) that want the roster to vote on
// something mid-schedule.
func (s *Scheduler) ProposeBallot(ctx context.Context, req consensus.ProposeRequest) (*consensus.Proposal, error) {
	return s.consensus.Open(ctx, req)
}

// CastBallot delegates a single vote to the wired consensus Engine.
func (s *Scheduler) CastBallot(ctx context.Context, req consensus.VoteRequest) error {
	return s.consensus.Cast(ctx, req)
}

// Stop clears the scheduler's running flag and, if WithTranscriptPath was
// configured, best-effort dumps the recorded transcript to disk as JSON
// (SPEC_FULL.md supplemented features: an optional debug aid, never a
// durability guarantee). A write failure is logged, not returned, since
// losing the transcript must never block shutdown. Turn does not consult
// the running flag, so a Turn called after Stop still runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	path := s.transcriptPath
	transcript := append([]TranscriptEntry(nil), s.transcript...)
	s.mu.Unlock()

	if path == "" {
		return
	}
	raw, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		s.log.Warn("failed to encode transcript", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		s.log.Warn("failed to write transcript", zap.String("path", path), zap.Error(err))
	}
}
