package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyra-sh/lyra/bus"
	"github.com/lyra-sh/lyra/consensus"
	"github.com/lyra-sh/lyra/internal/errs"
	"github.com/lyra-sh/lyra/internal/logging"
	"github.com/lyra-sh/lyra/keyring"
	"github.com/lyra-sh/lyra/ledger"
	"github.com/lyra-sh/lyra/scheduler"
	"github.com/lyra-sh/lyra/ticker"
)

type stubAnnouncer struct {
	states []State
}

func (s *stubAnnouncer) Announce(ctx context.Context, state State, detail string) {
	s.states = append(s.states, state)
}

func newTestKernel(t *testing.T) (*Kernel, *stubAnnouncer) {
	t.Helper()
	b := bus.New(logging.NoOp())
	tk := ticker.New(b, 50*time.Millisecond, logging.NoOp())
	kr := keyring.New(t.TempDir())
	led := ledger.New(t.TempDir(), logging.NoOp())
	ce := consensus.New(b, led, nil, logging.NoOp())
	sch := scheduler.New(b, ce, logging.NoOp())

	ann := &stubAnnouncer{}
	k := New(b, tk, kr, led, ce, sch, logging.NoOp(), ann)
	return k, ann
}

func TestBootWithoutWorkersReachesRunning(t *testing.T) {
	k, ann := newTestKernel(t)
	defer k.Ticker.Stop()

	record := BootstrapRecord{
		Agents: []AgentSpec{
			{ID: "agent-a", Role: "worker", Model: "stub-model"},
			{ID: "agent-b", Role: "worker", Model: "stub-model"},
		},
		Quorum: 0.66,
	}

	require.NoError(t, k.Boot(context.Background(), record))
	require.Equal(t, StateRunning, k.State())
	require.Contains(t, ann.states, StateBooting)
	require.Contains(t, ann.states, StateConsensus)
	require.Contains(t, ann.states, StateRunning)
	require.True(t, k.Ticker.IsRunning())
}

func TestBootRejectsAgentMissingModel(t *testing.T) {
	k, _ := newTestKernel(t)
	record := BootstrapRecord{Agents: []AgentSpec{{ID: "agent-a", Role: "worker"}}}

	err := k.Boot(context.Background(), record)
	require.ErrorIs(t, err, errs.ErrMissingModel)
}

func TestBootGeneratesKeypairsForEveryEntity(t *testing.T) {
	k, _ := newTestKernel(t)
	record := BootstrapRecord{Agents: []AgentSpec{{ID: "agent-a", Role: "worker", Model: "stub-model"}}}

	require.NoError(t, k.Boot(context.Background(), record))

	_, err := k.Keyring.PublicKey("kernel")
	require.NoError(t, err)
	_, err = k.Keyring.PublicKey("agent-a")
	require.NoError(t, err)
}

func TestShutdownStopsTickerAndScheduler(t *testing.T) {
	k, _ := newTestKernel(t)
	record := BootstrapRecord{Agents: []AgentSpec{{ID: "agent-a", Role: "worker", Model: "stub-model"}}}
	require.NoError(t, k.Boot(context.Background(), record))

	require.NoError(t, k.Shutdown(context.Background()))
	require.Equal(t, StateShuttingDown, k.State())
	require.False(t, k.Ticker.IsRunning())
}
