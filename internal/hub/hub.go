package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/nofus-backend/internal/room"
)

const maxCodeAttempts = 32

var (
	ErrClosed        = errors.New("hub: closed")
	ErrCodeExhausted = errors.New("hub: could not allocate a free room code")
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Reply chan CreateResult
}

type CreateResult struct {
	Room      *room.Room
	HostToken string
	Err       error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// Sweep removes rooms idle for longer than the TTL and replies with their
// codes.
type Sweep struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (Sweep) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	RoomTTL       time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger
}

// Hub is the room registry. It maps room codes to rooms and is the only
// place rooms are created or removed.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

// Done is closed after the hub and all of its rooms have been shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) Create() (*room.Room, string, error) {
	reply := make(chan CreateResult, 1)
	if !h.send(CreateRoom{Reply: reply}) {
		return nil, "", ErrClosed
	}
	select {
	case res := <-reply:
		return res.Room, res.HostToken, res.Err
	case <-h.ctx.Done():
		return nil, "", ErrClosed
	}
}

// Get returns the room for code, or nil.
func (h *Hub) Get(code string) *room.Room {
	reply := make(chan *room.Room, 1)
	if !h.send(GetRoom{Code: code, Reply: reply}) {
		return nil
	}
	select {
	case rm := <-reply:
		return rm
	case <-h.ctx.Done():
		return nil
	}
}

func (h *Hub) Sweep() []string {
	reply := make(chan []string, 1)
	if !h.send(Sweep{Reply: reply}) {
		return nil
	}
	select {
	case codes := <-reply:
		return codes
	case <-h.ctx.Done():
		return nil
	}
}

func (h *Hub) Shutdown() { h.send(ShutdownHub{}) }

func (h *Hub) send(m HubMsg) bool {
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	var sweep <-chan time.Time
	if h.opts.RoomTTL > 0 && h.opts.SweepInterval > 0 {
		t := time.NewTicker(h.opts.SweepInterval)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep:
			h.sweep()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create()

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case Sweep:
				msg.Reply <- h.sweep()

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create() CreateResult {
	for range maxCodeAttempts {
		code, err := GenerateCode()
		if err != nil {
			return CreateResult{Err: err}
		}
		if h.rooms[code] != nil {
			h.log.Debug("collision on code, regenerating", zap.String("room", code))
			continue
		}
		token, err := GenerateHostToken()
		if err != nil {
			return CreateResult{Err: err}
		}
		rm := room.New(h.ctx, code, token, h.log)
		h.rooms[code] = rm
		h.log.Info("room created", zap.String("room", code))
		return CreateResult{Room: rm, HostToken: token}
	}
	return CreateResult{Err: ErrCodeExhausted}
}

func (h *Hub) sweep() []string {
	if h.opts.RoomTTL <= 0 {
		return nil
	}
	now := time.Now()
	var removed []string
	for code, rm := range h.rooms {
		if rm.IdleFor(now) < h.opts.RoomTTL {
			continue
		}
		rm.Shutdown()
		delete(h.rooms, code)
		removed = append(removed, code)
		h.log.Info("room expired", zap.String("room", code))
	}
	return removed
}

func (h *Hub) shutdown() {
	for code, rm := range h.rooms {
		rm.Shutdown()
		delete(h.rooms, code)
	}
	h.cancel()
}
