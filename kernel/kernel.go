// Package kernel implements the boot sequence described in
// SPEC_FULL.md §4.7: validate the bootstrap record, generate or load
// every entity's keypair, spawn each agent's worker process and wait for
// its READY handshake, sync the consensus engine's own vote-weight table
// from the ledger, open a BOOT_CONSENSUS ballot carrying the ready
// roster's public keys so it agrees it came up consistently, then start
// the clock. Boot does not enroll agents in the scheduler. Grounded on
// lyra_os/kernel/__init__.py's boot() state machine (INITIALIZING ->
// BOOTING -> CONSENSUS -> RUNNING -> SHUTTING_DOWN) and its worker-process
// bootstrap handshake.
package kernel

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lyra-sh/lyra/bus"
	"github.com/lyra-sh/lyra/consensus"
	"github.com/lyra-sh/lyra/internal/errs"
	"github.com/lyra-sh/lyra/internal/logging"
	"github.com/lyra-sh/lyra/keyring"
	"github.com/lyra-sh/lyra/ledger"
	"github.com/lyra-sh/lyra/scheduler"
	"github.com/lyra-sh/lyra/ticker"
)

// State is the kernel's position in its boot/shutdown lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateBooting       State = "booting"
	StateConsensus     State = "consensus"
	StateRunning        State = "running"
	StateShuttingDown  State = "shutting_down"
)

// readyPrefix is the line prefix a spawned worker must print to stdout to
// signal it has finished its own startup and announce its public key
// (SPEC_FULL.md §6: "READY <pubkey_b64>").
const readyPrefix = "READY "

// readyTimeout bounds how long the kernel waits for a worker to print its
// ready line before treating the boot as failed.
const readyTimeout = 10 * time.Second

// AgentSpec describes one agent entry in a bootstrap record.
type AgentSpec struct {
	ID      string
	Role    string
	Model   string // required; empty is a fatal bootstrap error
	Command string
	Args    []string
}

// BootstrapRecord is the parsed configuration driving a boot. The CLI
// layer is responsible for decoding it from YAML (SPEC_FULL.md §6); the
// kernel only ever sees the already-parsed struct.
type BootstrapRecord struct {
	Agents       []AgentSpec
	Quorum       float64
	TickInterval time.Duration
}

// Announcer is notified of every kernel state transition. The default
// BusAnnouncer publishes to the bus; tests can supply a stub.
type Announcer interface {
	Announce(ctx context.Context, state State, detail string)
}

// BusAnnouncer publishes boot transitions to bus.TopicGlobal under the
// "kernel.boot" subject, for any component that wants to observe them.
type BusAnnouncer struct {
	Bus *bus.Bus
}

func (a *BusAnnouncer) Announce(ctx context.Context, state State, detail string) {
	a.Bus.Publish(ctx, bus.TopicGlobal, map[string]string{
		"subject": "kernel.boot", "state": string(state), "detail": detail,
	}, "kernel")
}

type worker struct {
	spec AgentSpec
	cmd  *exec.Cmd
}

// BootPayload is attached to the boot consensus proposal's Payload field
// so any subscriber observing consensus.event.proposal_created can see
// the full pubkey map offered at boot (SPEC_FULL.md §4.7 step 7: "a
// BOOT_CONSENSUS proposal with the set of ready agent ids and the pubkey
// map in metadata").
type BootPayload struct {
	PubKeys map[string]ed25519.PublicKey
}

// readyResult is what a spawned worker's stdout-scanning goroutine
// reports back: either a decoded public key, or the reason it never
// produced one.
type readyResult struct {
	pubKey ed25519.PublicKey
	err    error
}

// Kernel owns the boot/shutdown lifecycle and the components it wires
// together: the bus, ticker, keyring, ledger, consensus engine and
// scheduler.
type Kernel struct {
	Bus       *bus.Bus
	Ticker    *ticker.Ticker
	Keyring   *keyring.Keyring
	Ledger    *ledger.Ledger
	Consensus *consensus.Engine
	Scheduler *scheduler.Scheduler

	log       logging.Logger
	announcer Announcer

	mu      sync.Mutex
	state   State
	workers map[string]*worker
}

// New assembles a Kernel from already-constructed components.
func New(b *bus.Bus, tk *ticker.Ticker, kr *keyring.Keyring, led *ledger.Ledger, ce *consensus.Engine, sch *scheduler.Scheduler, log logging.Logger, announcer Announcer) *Kernel {
	if log == nil {
		log = logging.NoOp()
	}
	if announcer == nil {
		announcer = &BusAnnouncer{Bus: b}
	}
	return &Kernel{
		Bus: b, Ticker: tk, Keyring: kr, Ledger: led, Consensus: ce, Scheduler: sch,
		log: log, announcer: announcer,
		state:   StateInitializing,
		workers: make(map[string]*worker),
	}
}

// State returns the kernel's current lifecycle state.
func (k *Kernel) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

func (k *Kernel) setState(ctx context.Context, s State, detail string) {
	k.mu.Lock()
	k.state = s
	k.mu.Unlock()
	k.announcer.Announce(ctx, s, detail)
	k.log.Info("kernel state transition", zap.String("state", string(s)), zap.String("detail", detail))
}

// Boot runs the full startup sequence against record. On success the
// kernel is in StateRunning with the ticker started.
func (k *Kernel) Boot(ctx context.Context, record BootstrapRecord) error {
	k.setState(ctx, StateBooting, "validating bootstrap record")

	for _, spec := range record.Agents {
		if spec.Model == "" {
			return errors.Wrapf(errs.ErrMissingModel, "agent %q", spec.ID)
		}
	}

	pubkeys := make(map[string]ed25519.PublicKey, len(record.Agents)+1)

	kernelKey, err := k.Keyring.GetOrCreate("kernel")
	if err != nil {
		return errors.Wrap(err, "generate kernel keypair")
	}
	pubkeys["kernel"] = kernelKey

	for _, spec := range record.Agents {
		key, err := k.Keyring.GetOrCreate(spec.ID)
		if err != nil {
			return errors.Wrapf(err, "generate keypair for agent %q", spec.ID)
		}
		pubkeys[spec.ID] = key
	}

	for _, spec := range record.Agents {
		if spec.Command == "" {
			continue // in-process agent: keeps the keyring-derived pubkey above
		}
		pub, err := k.spawnWorker(ctx, spec)
		if err != nil {
			return errors.Wrapf(err, "spawn worker %q", spec.ID)
		}
		// A spawned worker's self-reported key is authoritative over the
		// keyring's, since it reflects whatever identity the worker
		// process actually loaded at startup.
		pubkeys[spec.ID] = pub
	}

	for id := range pubkeys {
		k.Consensus.SetVoterWeight(id, k.Ledger.TrustWeight(id))
	}

	k.setState(ctx, StateConsensus, "opening boot consensus ballot")
	if err := k.runBootConsensus(ctx, record, pubkeys); err != nil {
		return errors.Wrap(err, "boot consensus")
	}

	k.setState(ctx, StateRunning, "")
	k.Bus.RegisterHandler(bus.TopicTicker, func(ctx context.Context, _ bus.Message) error {
		k.Consensus.Sweep(ctx, time.Now())
		return nil
	})
	k.Ticker.Start(ctx)
	return nil
}

func (k *Kernel) spawnWorker(ctx context.Context, spec AgentSpec) (ed25519.PublicKey, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "attach stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start process")
	}

	readyCh := make(chan readyResult, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, readyPrefix) {
				continue
			}
			encoded := strings.TrimSpace(strings.TrimPrefix(line, readyPrefix))
			pub, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				readyCh <- readyResult{err: errors.Wrapf(err, "decode pubkey from worker %q ready line", spec.ID)}
				return
			}
			readyCh <- readyResult{pubKey: ed25519.PublicKey(pub)}
			return
		}
		readyCh <- readyResult{err: errors.Newf("worker %q exited before printing a %q line", spec.ID, readyPrefix)}
	}()

	select {
	case res := <-readyCh:
		if res.err != nil {
			return nil, res.err
		}
		k.mu.Lock()
		k.workers[spec.ID] = &worker{spec: spec, cmd: cmd}
		k.mu.Unlock()
		return res.pubKey, nil
	case <-time.After(readyTimeout):
		_ = cmd.Process.Kill()
		return nil, errors.Newf("worker %q did not become ready within %s", spec.ID, readyTimeout)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return nil, ctx.Err()
	}
}

// runBootConsensus opens a single "boot" proposal carrying the ready
// roster's pubkey map (SPEC_FULL.md §4.7 step 7) and has every booted
// entity approve it, establishing that the roster agrees on who is
// present, with what identity, before normal scheduling begins.
func (k *Kernel) runBootConsensus(ctx context.Context, record BootstrapRecord, pubkeys map[string]ed25519.PublicKey) error {
	eligible := make([]string, 0, len(record.Agents)+1)
	eligible = append(eligible, "kernel")
	for _, spec := range record.Agents {
		eligible = append(eligible, spec.ID)
	}
	sort.Strings(eligible)

	proposalID := "boot-" + time.Now().UTC().Format("20060102150405.000000")
	if _, err := k.Consensus.Open(ctx, consensus.ProposeRequest{
		ID:       proposalID,
		Subject:  "boot",
		Proposer: "kernel",
		Payload:  BootPayload{PubKeys: pubkeys},
		Eligible: eligible,
		TTL:      readyTimeout,
	}); err != nil {
		return err
	}

	for _, id := range eligible {
		p, err := k.Consensus.Get(proposalID)
		if err != nil {
			return errors.Wrapf(err, "look up boot proposal while casting for %q", id)
		}
		if p.Status != consensus.StatusVoting {
			// Quorum was already reached by earlier votes; remaining
			// roster members approving after the fact would only hit
			// ErrTerminalProposal.
			break
		}
		if err := k.Consensus.Cast(ctx, consensus.VoteRequest{
			ProposalID: proposalID, Voter: id, Type: consensus.VoteApprove, PubKey: pubkeys[id],
		}); err != nil {
			return errors.Wrapf(err, "cast boot vote for %q", id)
		}
	}

	p, err := k.Consensus.Get(proposalID)
	if err != nil {
		return errors.Wrap(err, "look up boot proposal result")
	}
	if p.Status != consensus.StatusApproved {
		return errors.Newf("boot consensus did not approve: status %s", p.Status)
	}
	return nil
}

// Shutdown stops the ticker, terminates any spawned workers, and stops
// the scheduler.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.setState(ctx, StateShuttingDown, "")

	k.Ticker.Stop()
	k.Scheduler.Stop()

	k.mu.Lock()
	workers := make([]*worker, 0, len(k.workers))
	for _, w := range k.workers {
		workers = append(workers, w)
	}
	k.mu.Unlock()

	var firstErr error
	for _, w := range workers {
		if w.cmd.Process == nil {
			continue
		}
		if err := w.cmd.Process.Kill(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "kill worker %q", w.spec.ID)
		}
	}
	return firstErr
}
