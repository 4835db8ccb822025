// Package consensus implements the weighted-quorum proposal engine
// described in SPEC_FULL.md §4.5. Grounded on
// original_source/celaya_python/runtime/consensus.py's ConsensusManager:
// proposals move PENDING -> VOTING -> {APPROVED, REJECTED, EXPIRED}, a
// vote replaces any earlier vote from the same voter, and a proposal
// resolves as soon as the weighted "for" or "against" share crosses the
// quorum threshold. Subject-level locking and prometheus counters follow
// the teacher's poll/quorum packages, which guard a round against
// concurrent re-entry and export metrics through a Registerer.
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lyra-sh/lyra/bus"
	"github.com/lyra-sh/lyra/internal/errs"
	"github.com/lyra-sh/lyra/internal/logging"
	"github.com/lyra-sh/lyra/ledger"
)

// Status is a proposal's position in its state machine.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVoting   Status = "voting"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

func (s Status) terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// VoteType is a ballot's stance.
type VoteType string

const (
	VoteApprove VoteType = "approve"
	VoteReject  VoteType = "reject"
	VoteAbstain VoteType = "abstain"
)

// Vote is a single ballot cast by a voter. Casting a second vote for the
// same proposal replaces the first (SPEC_FULL.md §3).
type Vote struct {
	ProposalID string
	Voter      string
	Type       VoteType
	Weight     float64
	PubKey     []byte // the voter's ED25519 public key, when known
	CastAt     time.Time
}

// Proposal is a single consensus round over payload.
type Proposal struct {
	ID        string
	Subject   string
	Proposer  string
	Payload   any
	Status    Status
	Eligible  []string
	Votes     map[string]Vote
	CreatedAt time.Time
	ExpiresAt time.Time
}

// snapshot returns a deep-enough copy for safe handoff outside the lock.
func (p *Proposal) snapshot() *Proposal {
	cp := *p
	cp.Votes = make(map[string]Vote, len(p.Votes))
	for k, v := range p.Votes {
		cp.Votes[k] = v
	}
	cp.Eligible = append([]string(nil), p.Eligible...)
	return &cp
}

// ProposeRequest is the bus payload an agent publishes on
// bus.TopicConsensusPropose to open a new round.
type ProposeRequest struct {
	ID       string
	Subject  string
	Proposer string
	Payload  any
	Eligible []string
	TTL      time.Duration
}

// VoteRequest is the bus payload published on bus.TopicConsensusVote.
type VoteRequest struct {
	ProposalID string
	Voter      string
	Type       VoteType
	// PubKey carries the voter's ED25519 public key so the consensus CID
	// (SPEC_FULL.md §3, §4.4) can be computed from real keys rather than
	// voter id strings. Callers outside the signed boot handshake (the
	// scheduler's general-purpose ballots, for instance) may leave this
	// empty; pin falls back to the voter id in that case.
	PubKey []byte
}

// Opened is the bus payload for consensus.event.proposal_created.
type Opened struct {
	ProposalID string
	Subject    string
}

// VoteReceived is the bus payload for consensus.event.vote_received.
type VoteReceived struct {
	ProposalID string
	Voter      string
	Type       VoteType
}

// StatusChanged is the bus payload for consensus.event.status_changed,
// emitted on every proposal state transition (including the implicit
// PENDING -> VOTING transition at creation time, per SPEC_FULL.md §4.5).
type StatusChanged struct {
	ProposalID string
	Subject    string
	From       Status
	To         Status
}

// Decided is the bus payload for consensus.event.quorum_reached.
type Decided struct {
	ProposalID  string
	Subject     string
	Status      Status
	CID         string
	ForWeight   float64
	TotalWeight float64
}

// Locked is the bus payload for consensus.event.soft_lock and
// consensus.event.hard_lock.
type Locked struct {
	Subject  string
	Reason   string
	Duration time.Duration // zero for a hard (indefinite) lock
}

// metrics bundles the prometheus collectors this engine registers.
type metrics struct {
	opened   prometheus.Counter
	approved prometheus.Counter
	rejected prometheus.Counter
	expired  prometheus.Counter
	active   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lyra_consensus_proposals_opened_total",
			Help: "Total consensus proposals opened.",
		}),
		approved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lyra_consensus_proposals_approved_total",
			Help: "Total consensus proposals approved.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lyra_consensus_proposals_rejected_total",
			Help: "Total consensus proposals rejected.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lyra_consensus_proposals_expired_total",
			Help: "Total consensus proposals that expired without quorum.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lyra_consensus_active_proposals",
			Help: "Number of proposals currently in VOTING.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.opened, m.approved, m.rejected, m.expired, m.active} {
			reg.MustRegister(c)
		}
	}
	return m
}

// DefaultQuorum is the fraction of eligible weight required for a
// proposal to resolve either way.
const DefaultQuorum = 0.66

// SoftLockThreshold is how many consecutive non-approved resolutions for
// the same subject trigger an automatic soft lock (SPEC_FULL.md §4.5:
// soft lock is "triggered by repeated failed quorums"). Hard lock has no
// such automatic trigger in the original source (§9 open question) and
// is exposed purely as a capability for a policy layer to call.
const SoftLockThreshold = 2

// DefaultSoftLockDuration is how long an automatically triggered soft
// lock lasts before the subject accepts proposals again.
const DefaultSoftLockDuration = 30 * time.Second

// Engine runs the weighted-quorum proposal lifecycle.
type Engine struct {
	bus     *bus.Bus
	ledger  *ledger.Ledger
	log     logging.Logger
	metrics *metrics
	quorum  float64

	mu                 sync.Mutex
	proposals          map[string]*Proposal
	locks              map[string]string // subject -> proposal id holding exclusive entry (concurrency control, not a bus-level lock event)
	weights            map[string]float64
	failedQuorumStreak map[string]int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithQuorum overrides DefaultQuorum.
func WithQuorum(q float64) Option {
	return func(e *Engine) { e.quorum = q }
}

// New builds an Engine wired to bus b, using led for CID pinning, and
// registering metrics against reg (nil is accepted: metrics are simply
// left unregistered, as in prometheus.NewRegistry()-less tests).
func New(b *bus.Bus, led *ledger.Ledger, reg prometheus.Registerer, log logging.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logging.NoOp()
	}
	e := &Engine{
		bus:                b,
		ledger:             led,
		log:                log,
		metrics:            newMetrics(reg),
		quorum:             DefaultQuorum,
		proposals:          make(map[string]*Proposal),
		locks:              make(map[string]string),
		weights:            make(map[string]float64),
		failedQuorumStreak: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}

	b.RegisterHandler(bus.TopicConsensusPropose, e.handlePropose)
	b.RegisterHandler(bus.TopicConsensusVote, e.handleVote)

	return e
}

func (e *Engine) handlePropose(ctx context.Context, msg bus.Message) error {
	req, ok := msg.Payload.(ProposeRequest)
	if !ok {
		return errs.NewProtocolViolation("consensus.proposal payload is not a ProposeRequest", nil)
	}
	_, err := e.Open(ctx, req)
	return err
}

func (e *Engine) handleVote(ctx context.Context, msg bus.Message) error {
	req, ok := msg.Payload.(VoteRequest)
	if !ok {
		return errs.NewProtocolViolation("consensus.vote payload is not a VoteRequest", nil)
	}
	return e.Cast(ctx, req)
}

// SetVoterWeight overrides voter's weight in the engine's own table,
// independent of the Ledger's trust-weight history. Two distinct
// defaults exist by design (SPEC_FULL.md §4.5/§9): the Ledger defaults an
// unknown entity's trust to 0.5, this table defaults unknown voters to
// 1.0 until a caller explicitly sets one. The kernel populates this table
// from the Ledger once, at boot; trust samples recorded after boot are not
// copied into it. The engine never reads the Ledger directly for vote
// weight.
func (e *Engine) SetVoterWeight(voter string, weight float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights[voter] = weight
}

// Open starts a new proposal. If another proposal already holds the
// subject, Open fails: one live round per subject at a time
// (SPEC_FULL.md §4.5). This exclusion is plain engine-internal
// concurrency control, distinct from the soft/hard lock bus events below.
func (e *Engine) Open(ctx context.Context, req ProposeRequest) (*Proposal, error) {
	now := time.Now()
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	e.mu.Lock()
	if holder, locked := e.locks[req.Subject]; locked {
		e.mu.Unlock()
		return nil, errors.Wrapf(errs.ErrTerminalProposal, "subject %q already locked by proposal %q", req.Subject, holder)
	}

	p := &Proposal{
		ID:        req.ID,
		Subject:   req.Subject,
		Proposer:  req.Proposer,
		Payload:   req.Payload,
		Status:    StatusVoting,
		Eligible:  append([]string(nil), req.Eligible...),
		Votes:     make(map[string]Vote),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	e.proposals[p.ID] = p
	e.locks[p.Subject] = p.ID
	e.metrics.opened.Inc()
	e.metrics.active.Inc()
	e.mu.Unlock()

	e.bus.Publish(ctx, bus.ConsensusEvent("proposal_created"), Opened{ProposalID: p.ID, Subject: p.Subject}, "consensus")
	e.bus.Publish(ctx, bus.ConsensusEvent("status_changed"),
		StatusChanged{ProposalID: p.ID, Subject: p.Subject, From: StatusPending, To: StatusVoting}, "consensus")
	e.log.Info("proposal opened", zap.String("proposal", p.ID), zap.String("subject", p.Subject))

	return p.snapshot(), nil
}

// Cast records voter's ballot, replacing any earlier vote from the same
// voter, publishes vote_received, then re-evaluates quorum.
func (e *Engine) Cast(ctx context.Context, req VoteRequest) error {
	e.mu.Lock()
	p, ok := e.proposals[req.ProposalID]
	if !ok {
		e.mu.Unlock()
		return errors.Wrapf(errs.ErrUnknownProposal, "proposal %q", req.ProposalID)
	}
	if p.Status.terminal() {
		e.mu.Unlock()
		return errors.Wrapf(errs.ErrTerminalProposal, "proposal %q", req.ProposalID)
	}

	weight := e.voterWeight(req.Voter)
	p.Votes[req.Voter] = Vote{
		ProposalID: req.ProposalID,
		Voter:      req.Voter,
		Type:       req.Type,
		Weight:     weight,
		PubKey:     req.PubKey,
		CastAt:     time.Now(),
	}

	decided, decidedStatus := e.evaluateLocked(p)
	e.mu.Unlock()

	e.bus.Publish(ctx, bus.ConsensusEvent("vote_received"),
		VoteReceived{ProposalID: req.ProposalID, Voter: req.Voter, Type: req.Type}, "consensus")

	if decided {
		e.finalize(ctx, p, decidedStatus)
	}
	return nil
}

// voterWeight looks up voter in the engine's own weight table, defaulting
// to 1.0 (SPEC_FULL.md §4.5, §9 "Two defaults for vote weight"). Callers
// must already hold e.mu.
func (e *Engine) voterWeight(voter string) float64 {
	if w, ok := e.weights[voter]; ok {
		return w
	}
	return 1.0
}

// evaluateLocked must be called with e.mu held. It returns whether the
// proposal just became terminal and, if so, which status it resolved to.
func (e *Engine) evaluateLocked(p *Proposal) (bool, Status) {
	var totalWeight, forWeight, againstWeight float64
	for _, voter := range p.Eligible {
		totalWeight += e.voterWeight(voter)
	}
	if totalWeight == 0 {
		// No declared roster: fall back to the weight actually seen.
		for _, v := range p.Votes {
			totalWeight += v.Weight
		}
	}
	for _, v := range p.Votes {
		switch v.Type {
		case VoteApprove:
			forWeight += v.Weight
		case VoteReject:
			againstWeight += v.Weight
		}
	}

	if totalWeight == 0 {
		return false, ""
	}
	if forWeight/totalWeight >= e.quorum {
		p.Status = StatusApproved
		return true, StatusApproved
	}
	if againstWeight/totalWeight >= e.quorum {
		p.Status = StatusRejected
		return true, StatusRejected
	}
	return false, ""
}

// finalize pins an approved proposal's record to the ledger, publishes
// status_changed and (for a quorum-driven outcome) quorum_reached,
// releases the subject's exclusion, and auto-triggers a soft lock after
// SoftLockThreshold consecutive non-approved resolutions for the subject.
func (e *Engine) finalize(ctx context.Context, p *Proposal, status Status) {
	e.mu.Lock()
	forWeight, totalWeight := e.tallyLocked(p)
	delete(e.locks, p.Subject)
	e.metrics.active.Dec()

	if status == StatusApproved {
		e.failedQuorumStreak[p.Subject] = 0
	} else {
		e.failedQuorumStreak[p.Subject]++
	}
	streak := e.failedQuorumStreak[p.Subject]
	e.mu.Unlock()

	var cid string
	if status == StatusApproved && e.ledger != nil {
		cid = e.pin(p)
	}

	switch status {
	case StatusApproved:
		e.metrics.approved.Inc()
	case StatusRejected:
		e.metrics.rejected.Inc()
	case StatusExpired:
		e.metrics.expired.Inc()
	}

	e.bus.Publish(ctx, bus.ConsensusEvent("status_changed"),
		StatusChanged{ProposalID: p.ID, Subject: p.Subject, From: StatusVoting, To: status}, "consensus")

	if status == StatusApproved || status == StatusRejected {
		evt := Decided{ProposalID: p.ID, Subject: p.Subject, Status: status, CID: cid, ForWeight: forWeight, TotalWeight: totalWeight}
		e.bus.Publish(ctx, bus.ConsensusEvent("quorum_reached"), evt, "consensus")
	}

	if status != StatusApproved && streak >= SoftLockThreshold {
		e.SoftLock(ctx, p.Subject, DefaultSoftLockDuration, "repeated failed quorum")
	}

	e.log.Info("proposal resolved", zap.String("proposal", p.ID), zap.String("status", string(status)), zap.String("cid", cid))
}

// SoftLock publishes consensus.event.soft_lock announcing a time-bounded
// pause of proposal acceptance for subject. The engine triggers this
// itself after SoftLockThreshold consecutive failed-quorum resolutions for
// the same subject; callers may also invoke it directly as a policy
// capability. The engine does not enforce the pause: Open keeps accepting
// proposals for the subject.
func (e *Engine) SoftLock(ctx context.Context, subject string, duration time.Duration, reason string) {
	e.bus.Publish(ctx, bus.ConsensusEvent("soft_lock"), Locked{Subject: subject, Reason: reason, Duration: duration}, "consensus")
	e.log.Info("soft lock", zap.String("subject", subject), zap.String("reason", reason), zap.Duration("duration", duration))
}

// HardLock publishes consensus.event.hard_lock announcing an indefinite
// pause of proposal acceptance for subject; as with SoftLock, Open does
// not enforce it. Nothing in the reference
// implementation triggers this automatically (SPEC_FULL.md §9 open
// question: "no caller triggers them in the source"); it exists purely as
// a capability a policy layer — the kernel, on catastrophic failure or
// shutdown — may invoke.
func (e *Engine) HardLock(ctx context.Context, subject, reason string) {
	e.bus.Publish(ctx, bus.ConsensusEvent("hard_lock"), Locked{Subject: subject, Reason: reason}, "consensus")
	e.log.Warn("hard lock", zap.String("subject", subject), zap.String("reason", reason))
}

func (e *Engine) tallyLocked(p *Proposal) (forWeight, totalWeight float64) {
	for _, voter := range p.Eligible {
		totalWeight += e.voterWeight(voter)
	}
	if totalWeight == 0 {
		for _, v := range p.Votes {
			totalWeight += v.Weight
		}
	}
	for _, v := range p.Votes {
		if v.Type == VoteApprove {
			forWeight += v.Weight
		}
	}
	return forWeight, totalWeight
}

// pin computes the consensus CID from the sorted set of participating
// public keys (SPEC_FULL.md §3, §4.4) and writes the proposal record
// under it. A vote cast without a known public key (general-purpose
// ballots outside the signed boot handshake) falls back to its voter id
// so every proposal still produces a deterministic, non-empty CID.
func (e *Engine) pin(p *Proposal) string {
	pubkeys := make([][]byte, 0, len(p.Votes))
	for _, v := range p.Votes {
		if len(v.PubKey) > 0 {
			pubkeys = append(pubkeys, v.PubKey)
		} else {
			pubkeys = append(pubkeys, []byte(v.Voter))
		}
	}
	cid := ledger.ComputeConsensusCID(pubkeys)
	if err := e.ledger.Pin(cid, p.snapshot()); err != nil {
		e.log.Warn("failed to pin consensus record", zap.String("proposal", p.ID), zap.Error(err))
		return ""
	}
	return cid
}

// Sweep expires any VOTING proposal past its deadline. Callers run this
// periodically (the kernel drives it off the ticker).
func (e *Engine) Sweep(ctx context.Context, now time.Time) {
	e.mu.Lock()
	var expired []*Proposal
	for _, p := range e.proposals {
		if p.Status == StatusVoting && now.After(p.ExpiresAt) {
			p.Status = StatusExpired
			expired = append(expired, p)
		}
	}
	e.mu.Unlock()

	for _, p := range expired {
		e.finalize(ctx, p, StatusExpired)
	}
}

// Get returns a snapshot of a proposal by id.
func (e *Engine) Get(id string) (*Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.proposals[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrUnknownProposal, "proposal %q", id)
	}
	return p.snapshot(), nil
}
