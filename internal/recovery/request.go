package recovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
)

var ErrNoHolder = errors.New("no connected player to ask")
var ErrNoReply = errors.New("no recovery reply before deadline")
var ErrRoomMismatch = errors.New("recovered snapshot belongs to another room")

const DefaultTimeout = 5 * time.Second

// Reply is a PROVIDE_STATE_RECOVERY message as seen by the host.
type Reply struct {
	SenderID string
	Envelope string
}

// Requester runs the single recovery attempt. Exactly one player is asked;
// there is no retry against a second one.
type Requester struct {
	Sealer   *Sealer
	RoomCode string
	Timeout  time.Duration
	// Pick returns an index in [0, n). Defaults to math/rand/v2.
	Pick func(n int) int
}

// Recover asks one candidate, chosen at random, for its envelope through ask
// and waits for the matching reply on replies.
func (r Requester) Recover(ctx context.Context, candidates []string, ask func(ctx context.Context, playerID string) error, replies <-chan Reply) (engine.Snapshot, string, error) {
	if len(candidates) == 0 {
		return engine.Snapshot{}, "", ErrNoHolder
	}
	pick := r.Pick
	if pick == nil {
		pick = rand.IntN
	}
	holder := candidates[pick(len(candidates))]

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ask(ctx, holder); err != nil {
		return engine.Snapshot{}, holder, fmt.Errorf("recovery: ask %s: %w", holder, err)
	}

	for {
		select {
		case <-ctx.Done():
			return engine.Snapshot{}, holder, ErrNoReply
		case reply := <-replies:
			if reply.SenderID != holder {
				continue
			}
			snap, err := r.Sealer.Unseal(reply.Envelope)
			if err != nil {
				return engine.Snapshot{}, holder, err
			}
			if r.RoomCode != "" && snap.RoomCode != r.RoomCode {
				return engine.Snapshot{}, holder, ErrRoomMismatch
			}
			return snap, holder, nil
		}
	}
}
