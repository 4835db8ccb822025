package bus

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lyra-sh/lyra/internal/errs"
	"github.com/lyra-sh/lyra/internal/logging"
)

// HandlerFunc observes every message published on a topic, in addition to
// (not instead of) normal mailbox delivery. A handler that panics or
// returns an error never affects sibling handlers or the publisher
// (SPEC_FULL.md §4.1, §5).
type HandlerFunc func(ctx context.Context, msg Message) error

// defaultMailboxCapacity bounds a subscriber's backlog before the
// private/public overflow policy in mailbox.go kicks in.
const defaultMailboxCapacity = 256

// Bus is the single message hub all agents, the ticker and the
// consensus engine publish to and consume from. Grounded on the Bus
// class in original_source/celaya_python/runtime/bus.py.
type Bus struct {
	log logging.Logger

	mu            sync.RWMutex
	mailboxes     map[string]*mailbox
	subscriptions map[string]map[string]struct{} // topic -> subscriber ids
	handlers      map[string][]HandlerFunc
}

// New builds an empty Bus. A nil logger defaults to a no-op logger.
func New(log logging.Logger) *Bus {
	if log == nil {
		log = logging.NoOp()
	}
	return &Bus{
		log:           log,
		mailboxes:     make(map[string]*mailbox),
		subscriptions: make(map[string]map[string]struct{}),
		handlers:      make(map[string][]HandlerFunc),
	}
}

// CreateMailbox registers a subscriber id with its own bounded inbox.
// Calling it twice for the same id is a no-op; private controls the
// overflow policy (fail-fast vs drop-oldest).
func (b *Bus) CreateMailbox(id string, private bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[id]; ok {
		return
	}
	b.mailboxes[id] = newMailbox(id, defaultMailboxCapacity, private)
}

// Subscribe adds subscriberID to topic's delivery list. The subscriber's
// mailbox must already exist via CreateMailbox.
func (b *Bus) Subscribe(topic, subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[subscriberID]; !ok {
		return errors.Wrapf(errs.ErrNoMailbox, "subscribe %q to %q", subscriberID, topic)
	}
	set, ok := b.subscriptions[topic]
	if !ok {
		set = make(map[string]struct{})
		b.subscriptions[topic] = set
	}
	set[subscriberID] = struct{}{}
	return nil
}

// Unsubscribe removes subscriberID from topic's delivery list. Unknown
// topic/subscriber pairs are tolerated silently, matching the teacher
// source's idempotent unsubscribe.
func (b *Bus) Unsubscribe(topic, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscriptions[topic]; ok {
		delete(set, subscriberID)
	}
}

// RegisterHandler attaches a synchronous-dispatch, concurrently-run
// observer to topic. Handlers do not receive a mailbox and cannot
// unsubscribe; they exist for cross-cutting concerns such as metrics and
// the consensus engine's proposal/vote ingestion.
func (b *Bus) RegisterHandler(topic string, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish enqueues msg into every current subscriber's mailbox
// synchronously — Publish does not return until every enqueue attempt has
// completed — then fans the message out to registered handlers
// concurrently and returns without waiting on them. A full private
// mailbox is logged and skipped rather than blocking the publisher.
func (b *Bus) Publish(ctx context.Context, topic string, payload any, sender string) Message {
	msg := newMessage(topic, payload, sender)

	b.mu.RLock()
	subscriberIDs := make([]string, 0, len(b.subscriptions[topic]))
	for id := range b.subscriptions[topic] {
		subscriberIDs = append(subscriberIDs, id)
	}
	mailboxes := make(map[string]*mailbox, len(subscriberIDs))
	for _, id := range subscriberIDs {
		mailboxes[id] = b.mailboxes[id]
	}
	handlers := append([]HandlerFunc(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for _, id := range subscriberIDs {
		mb := mailboxes[id]
		if mb == nil {
			continue
		}
		if err := mb.enqueue(msg); err != nil {
			b.log.Warn("mailbox full, dropping message",
				zap.String("subscriber", id), zap.String("topic", topic), zap.Error(err))
		}
	}

	if len(handlers) > 0 {
		b.dispatchHandlers(ctx, handlers, msg)
	}

	return msg
}

// dispatchHandlers runs each handler in its own goroutine, isolated by an
// errgroup-per-handler so a panic or error in one never cancels or blocks
// the others. This mirrors the teacher's poll/consensus round dispatch,
// where one bad vote callback must not sink the whole round.
func (b *Bus) dispatchHandlers(ctx context.Context, handlers []HandlerFunc, msg Message) {
	for _, h := range handlers {
		h := h
		var g errgroup.Group
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Newf("handler panic: %v", r)
				}
			}()
			return h(ctx, msg)
		})
		go func() {
			if err := g.Wait(); err != nil {
				b.log.Error("bus handler failed",
					zap.String("topic", msg.Topic), zap.Error(err))
			}
		}()
	}
}

// NextMessage blocks until subscriberID's mailbox has a message, ctx is
// cancelled, or the mailbox does not exist.
func (b *Bus) NextMessage(ctx context.Context, subscriberID string) (Message, error) {
	b.mu.RLock()
	mb, ok := b.mailboxes[subscriberID]
	b.mu.RUnlock()
	if !ok {
		return Message{}, errors.Wrapf(errs.ErrNoMailbox, "subscriber %q", subscriberID)
	}
	return mb.next(ctx)
}

// TryNextMessage pops subscriberID's oldest pending message without
// blocking, reporting false if the mailbox is empty or unknown. Used by
// the scheduler to drain an agent's private mailbox into turn context
// before invoking it, where blocking on an empty mailbox would stall the
// whole turn.
func (b *Bus) TryNextMessage(subscriberID string) (Message, bool) {
	b.mu.RLock()
	mb, ok := b.mailboxes[subscriberID]
	b.mu.RUnlock()
	if !ok {
		return Message{}, false
	}
	return mb.tryNext()
}

// MailboxSize reports the current backlog for subscriberID, or -1 if no
// such mailbox exists.
func (b *Bus) MailboxSize(subscriberID string) int {
	b.mu.RLock()
	mb, ok := b.mailboxes[subscriberID]
	b.mu.RUnlock()
	if !ok {
		return -1
	}
	return mb.len()
}

func errMailboxFull(id string) error {
	return errors.Wrapf(errs.ErrMailboxFull, "mailbox %q", id)
}
