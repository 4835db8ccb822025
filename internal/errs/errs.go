// Package errs holds the sentinel errors shared across lyra packages, and
// a small protocol-violation wrapper so callers can distinguish "log and
// discard" faults from everything else per the error taxonomy in SPEC_FULL.md §7.
package errs

import "github.com/cockroachdb/errors"

var (
	// ErrNoMailbox is returned by Bus.NextMessage for an unknown subscriber.
	ErrNoMailbox = errors.New("lyra: no such mailbox")

	// ErrMailboxFull is returned when a private mailbox's bounded queue is
	// saturated (fail-fast policy, SPEC_FULL.md §4.1).
	ErrMailboxFull = errors.New("lyra: mailbox full")

	// ErrUnknownProposal is returned for a vote referencing a proposal id
	// the consensus engine has never seen.
	ErrUnknownProposal = errors.New("lyra: unknown proposal")

	// ErrTerminalProposal is returned for a vote arriving after a proposal
	// has already reached a terminal status.
	ErrTerminalProposal = errors.New("lyra: proposal already terminal")

	// ErrNoKeypair is returned by Keyring.Sign and Keyring.PublicKey when
	// the entity's keypair has not been loaded via GetOrCreate.
	ErrNoKeypair = errors.New("lyra: no keypair for entity")

	// ErrMissingModel is a fatal bootstrap configuration error: an agent
	// entry in the bootstrap record has no model field.
	ErrMissingModel = errors.New("lyra: bootstrap agent missing model")
)

// ProtocolViolation wraps a malformed or out-of-sequence message that
// should be logged at warning and discarded, never propagated as fatal.
type ProtocolViolation struct {
	Reason string
	Cause  error
}

func (p *ProtocolViolation) Error() string {
	if p.Cause != nil {
		return "lyra: protocol violation: " + p.Reason + ": " + p.Cause.Error()
	}
	return "lyra: protocol violation: " + p.Reason
}

func (p *ProtocolViolation) Unwrap() error { return p.Cause }

// NewProtocolViolation builds a ProtocolViolation with the given reason,
// optionally wrapping an underlying cause.
func NewProtocolViolation(reason string, cause error) *ProtocolViolation {
	return &ProtocolViolation{Reason: reason, Cause: cause}
}
