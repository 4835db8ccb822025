// Package bus implements the publish/subscribe hub described in
// SPEC_FULL.md §4.1: one global topic plus per-agent private mailboxes,
// synchronous publish, asynchronous consumption, per-(topic,subscriber)
// FIFO ordering. Grounded on the async pub-sub wrapper in
// original_source/celaya_python/runtime/bus.py, reshaped for goroutines:
// each mailbox is a mutex-guarded ring with a notify channel instead of an
// asyncio.Queue, and handler dispatch uses golang.org/x/sync/errgroup the
// way the teacher's poll/consensus packages isolate one bad callback from
// the rest of a round.
package bus

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Message is an immutable, published event. Produced by Publish, consumed
// by mailbox readers (SPEC_FULL.md §3).
type Message struct {
	ID        string
	Topic     string
	Payload   any
	Sender    string
	Timestamp int64 // UnixNano; monotonic for ordering purposes only
}

// lastTimestamp is the most recent Message timestamp handed out, so
// newMessage can keep timestamps increasing even if the wall clock steps
// backwards.
var lastTimestamp atomic.Int64

func newMessage(topic string, payload any, sender string) Message {
	ts := time.Now().UnixNano()
	for {
		prev := lastTimestamp.Load()
		if ts <= prev {
			ts = prev + 1
		}
		if lastTimestamp.CompareAndSwap(prev, ts) {
			break
		}
		ts = time.Now().UnixNano()
	}
	return Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Sender:    sender,
		Timestamp: ts,
	}
}

// Reserved topic names (SPEC_FULL.md §6).
const (
	TopicTicker           = "ticker"
	TopicGlobal           = "global.bus"
	TopicConsensusPropose = "consensus.proposal"
	TopicConsensusVote    = "consensus.vote"
)

// AgentInbox returns the reserved private-mailbox topic name for an agent.
func AgentInbox(agentID string) string {
	return "agent." + agentID + ".in"
}

// ConsensusEvent returns a reserved consensus lifecycle event topic.
func ConsensusEvent(name string) string {
	return "consensus.event." + name
}
