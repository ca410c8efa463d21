package gossip

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrBind              = errors.New("gossip: cannot bind socket")
	ErrBadPeerAddress    = errors.New("gossip: bad peer address")
	ErrMalformedEnvelope = errors.New("gossip: malformed envelope")
	ErrEnvelopeTooLarge  = errors.New("gossip: envelope exceeds max datagram size")
	ErrAlreadyStarted    = errors.New("gossip: background tasks already started")
	ErrClosed            = errors.New("gossip: node closed")
)

// SendError is returned by Broadcast when no selected peer could be sent to.
// Err holds the individual failures combined with multierr.
type SendError struct {
	Attempted int
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("gossip: all %d sends failed: %v", e.Attempted, e.Err)
}

func (e *SendError) Unwrap() []error { return multierr.Errors(e.Err) }
