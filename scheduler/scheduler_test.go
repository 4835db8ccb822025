package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyra-sh/lyra/agent"
	"github.com/lyra-sh/lyra/bus"
	"github.com/lyra-sh/lyra/consensus"
	"github.com/lyra-sh/lyra/internal/logging"
	"github.com/lyra-sh/lyra/ledger"
)

func newTestScheduler(t *testing.T) (*Scheduler, *bus.Bus) {
	t.Helper()
	b := bus.New(logging.NoOp())
	led := ledger.New(t.TempDir(), logging.NoOp())
	ce := consensus.New(b, led, nil, logging.NoOp())
	return New(b, ce, logging.NoOp()), b
}

func identity(id string) agent.Identity {
	return agent.Identity{ID: id, Role: "worker", PriorityKeywords: DefaultInterruptKeywords}
}

func TestTurnRoundRobinsAcrossAgents(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.AddAgent(agent.New(identity("agent-a"), &agent.StubModel{Reply: "a"}))
	s.AddAgent(agent.New(identity("agent-b"), &agent.StubModel{Reply: "b"}))

	first := s.Turn(context.Background(), "hello")
	second := s.Turn(context.Background(), "hello again")

	require.NotEqual(t, first.AgentID, second.AgentID)
}

func TestTurnRecordsTranscript(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.AddAgent(agent.New(identity("agent-a"), &agent.StubModel{Reply: "ack"}))

	s.Turn(context.Background(), "ping")
	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	require.Equal(t, "ack", transcript[0].Response)
}

func TestTurnErrorPenalizesReputation(t *testing.T) {
	s, _ := newTestScheduler(t)
	a := agent.New(identity("agent-a"), &agent.StubModel{Err: errors.New("boom")})
	s.AddAgent(a)

	before := a.Reputation()
	s.Turn(context.Background(), "ping")
	require.Less(t, a.Reputation(), before)
}

func TestTurnSuccessImprovesReputation(t *testing.T) {
	s, _ := newTestScheduler(t)
	a := agent.New(identity("agent-a"), &agent.StubModel{Reply: "ok"})
	a.AdjustReputation(-0.5)
	s.AddAgent(a)

	before := a.Reputation()
	s.Turn(context.Background(), "ping")
	require.Greater(t, a.Reputation(), before)
}

func TestRequestInterruptRefusedPastMaxDepth(t *testing.T) {
	s, _ := newTestScheduler(t)
	for i := 0; i < MaxInterruptDepth; i++ {
		s.pausedStack = append(s.pausedStack, "someone")
	}
	ok := s.RequestInterrupt("agent-b", "urgent thing", PreemptThreshold+5)
	require.False(t, ok)
}

func TestRequestInterruptAcceptedUnderMaxDepth(t *testing.T) {
	s, _ := newTestScheduler(t)
	ok := s.RequestInterrupt("agent-b", "urgent thing", PreemptThreshold+5)
	require.True(t, ok)
}

func TestSendDirectDeliversToPrivateMailbox(t *testing.T) {
	s, b := newTestScheduler(t)
	b.CreateMailbox("agent-b", true)
	require.NoError(t, b.Subscribe(bus.AgentInbox("agent-b"), "agent-b"))

	s.SendDirect(context.Background(), "agent-a", "agent-b", "psst")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := b.NextMessage(ctx, "agent-b")
	require.NoError(t, err)
	require.Equal(t, "psst", msg.Payload)
}

func TestLeaderElectedFromInitialRoster(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.AddAgent(agent.New(identity("agent-a"), &agent.StubModel{}))
	require.Equal(t, "agent-a", s.Leader())
}

func TestStopWritesTranscriptWhenPathConfigured(t *testing.T) {
	b := bus.New(logging.NoOp())
	led := ledger.New(t.TempDir(), logging.NoOp())
	ce := consensus.New(b, led, nil, logging.NoOp())
	path := filepath.Join(t.TempDir(), "transcript.json")
	s := New(b, ce, logging.NoOp(), WithTranscriptPath(path))
	s.AddAgent(agent.New(identity("agent-a"), &agent.StubModel{Reply: "ack"}))

	s.Turn(context.Background(), "ping")
	s.Stop()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "ack")
}

func TestStopWithoutTranscriptPathIsNoOp(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.AddAgent(agent.New(identity("agent-a"), &agent.StubModel{Reply: "ack"}))
	s.Turn(context.Background(), "ping")
	s.Stop() // must not panic or attempt any write
}

func TestProposeAndCastBallotDelegatesToConsensus(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	p, err := s.ProposeBallot(ctx, consensus.ProposeRequest{
		ID: "p1", Subject: "deploy", Proposer: "agent-a",
		Eligible: []string{"agent-a", "agent-b"},
	})
	require.NoError(t, err)
	require.Equal(t, consensus.StatusVoting, p.Status)

	require.NoError(t, s.CastBallot(ctx, consensus.VoteRequest{ProposalID: "p1", Voter: "agent-a", Type: consensus.VoteApprove}))
	require.NoError(t, s.CastBallot(ctx, consensus.VoteRequest{ProposalID: "p1", Voter: "agent-b", Type: consensus.VoteApprove}))
}
