// Package host runs the authoritative side of a room. One goroutine owns
// the snapshot; relay messages, timer ticks and content results all reach
// it through channels and are applied one at a time.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/nofus-backend/internal/content"
	"github.com/DoyleJ11/nofus-backend/internal/engine"
	"github.com/DoyleJ11/nofus-backend/internal/recovery"
	"github.com/DoyleJ11/nofus-backend/internal/view"
	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

const inboxSize = 64

// Transport carries envelopes between the session and the relay.
type Transport interface {
	Send(ctx context.Context, env types.Envelope) error
	Recv(ctx context.Context) (types.Envelope, error)
}

type Options struct {
	Config          engine.RoomConfig
	Provider        content.Provider
	TickInterval    time.Duration
	RecoveryTimeout time.Duration
	// RetryDelay is how long a failed content fetch waits before it is
	// reported, which paces the re-request.
	RetryDelay time.Duration
	Pick       func(n int) int
	Rand       engine.Rand
	Logger     *zap.Logger
}

type Session struct {
	roomCode string
	t        Transport
	sealer   *recovery.Sealer
	machine  *engine.Machine
	opts     Options
	log      *zap.Logger

	snap    engine.Snapshot
	inbox   chan types.Envelope
	replies chan recovery.Reply
	results chan engine.Event
}

func NewSession(roomCode, hostToken string, t Transport, opts Options) (*Session, error) {
	sealer, err := recovery.NewSealer(hostToken)
	if err != nil {
		return nil, err
	}
	if opts.Config == (engine.RoomConfig{}) {
		opts.Config = engine.DefaultConfig()
	}
	if opts.Provider == nil {
		opts.Provider = content.NewStatic()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = recovery.DefaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		roomCode: roomCode,
		t:        t,
		sealer:   sealer,
		machine:  engine.NewMachine(opts.Rand),
		opts:     opts,
		log:      opts.Logger.With(zap.String("room", roomCode)),
		inbox:    make(chan types.Envelope, inboxSize),
		replies:  make(chan recovery.Reply, 1),
		results:  make(chan engine.Event, inboxSize),
	}, nil
}

// Run drives the session until ctx is done or the transport fails.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(ctx) })
	g.Go(func() error { return s.loop(ctx, g) })
	return g.Wait()
}

// readLoop splits recovery replies from everything else so that a pending
// recovery is answered while the main loop is still bootstrapping.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		env, err := s.t.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Type == types.MsgProvideStateRecovery {
			var p types.StateRecoveryPayload
			if err := env.Decode(&p); err != nil {
				s.log.Info("bad recovery reply", zap.String("player", env.SenderID), zap.Error(err))
				continue
			}
			select {
			case s.replies <- recovery.Reply{SenderID: env.SenderID, Envelope: p.Recovery}:
			default:
				s.log.Debug("unsolicited recovery reply", zap.String("player", env.SenderID))
			}
			continue
		}
		select {
		case s.inbox <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) loop(ctx context.Context, g *errgroup.Group) error {
	hello, pending, err := s.awaitHostConnected(ctx)
	if err != nil {
		return err
	}
	snap, effects := s.bootstrap(ctx, hello)
	s.snap = snap
	s.runEffects(ctx, g, effects)
	s.sync(ctx)

	for _, env := range pending {
		s.handle(ctx, g, env)
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.apply(ctx, g, engine.Event{Type: engine.EvtTimerTick, SenderID: engine.HostSenderID})
		case env := <-s.inbox:
			s.handle(ctx, g, env)
		case ev := <-s.results:
			s.apply(ctx, g, ev)
		}
	}
}

func (s *Session) awaitHostConnected(ctx context.Context) (types.HostConnectedPayload, []types.Envelope, error) {
	var pending []types.Envelope
	for {
		select {
		case <-ctx.Done():
			return types.HostConnectedPayload{}, nil, ctx.Err()
		case env := <-s.inbox:
			switch env.Type {
			case types.MsgHostConnected:
				var hello types.HostConnectedPayload
				if err := env.Decode(&hello); err != nil && !errors.Is(err, types.ErrEmptyPayload) {
					s.log.Warn("bad HOST_CONNECTED payload", zap.Error(err))
				}
				return hello, pending, nil
			case types.MsgError:
				var p types.ErrorPayload
				_ = env.Decode(&p)
				return types.HostConnectedPayload{}, nil, fmt.Errorf("relay refused host: %s: %s", p.Code, p.Message)
			default:
				pending = append(pending, env)
			}
		}
	}
}

// bootstrap picks the starting snapshot: a recovered one when a connected
// player returns a valid envelope, a fresh lobby otherwise. Either way the
// roster's connection flags are applied on top.
func (s *Session) bootstrap(ctx context.Context, hello types.HostConnectedPayload) (engine.Snapshot, []engine.Effect) {
	var online []string
	for _, p := range hello.Players {
		if p.IsConnected {
			online = append(online, p.ID)
		}
	}

	snap := engine.NewSnapshot(s.roomCode, s.opts.Config)
	if len(online) == 0 {
		s.log.Info("no players connected, starting fresh")
		return s.reconcile(snap, hello.Players)
	}

	req := recovery.Requester{
		Sealer:   s.sealer,
		RoomCode: s.roomCode,
		Timeout:  s.opts.RecoveryTimeout,
		Pick:     s.opts.Pick,
	}
	recovered, holder, err := req.Recover(ctx, online, s.askForState, s.replies)
	if err != nil {
		s.log.Warn("state recovery failed, starting fresh", zap.String("player", holder), zap.Error(err))
		return s.reconcile(snap, hello.Players)
	}
	s.log.Info("state recovered", zap.String("player", holder), zap.String("phase", string(recovered.Phase)))
	// Fetches in flight died with the previous host.
	recovered.ArticleFetching = map[string]bool{}
	return s.reconcile(recovered, hello.Players)
}

func (s *Session) reconcile(snap engine.Snapshot, roster []types.RosterEntry) (engine.Snapshot, []engine.Effect) {
	online := make(map[string]bool, len(roster))
	var events []engine.Event
	for _, p := range roster {
		if p.IsConnected {
			online[p.ID] = true
			events = append(events, engine.Event{Type: engine.EvtPlayerConnected, SenderID: p.ID, PlayerID: p.ID, PlayerName: p.Name})
		}
	}
	for _, p := range snap.OrderedPlayers() {
		if p.IsConnected && !online[p.ID] {
			events = append(events, engine.Event{Type: engine.EvtPlayerDisconnected, SenderID: p.ID, PlayerID: p.ID})
		}
	}

	var effects []engine.Effect
	for _, ev := range events {
		eff, next, err := s.machine.Apply(snap, ev)
		if err != nil {
			s.log.Debug("roster event rejected", zap.String("player", ev.PlayerID), zap.Error(err))
			continue
		}
		snap = next
		effects = append(effects, eff...)
	}
	return snap, effects
}

func (s *Session) askForState(ctx context.Context, playerID string) error {
	env, err := types.NewEnvelope(types.MsgRequestStateRecovery, playerID, nil)
	if err != nil {
		return err
	}
	return s.t.Send(ctx, env)
}

func (s *Session) handle(ctx context.Context, g *errgroup.Group, env types.Envelope) {
	ev, ok := toEvent(env)
	if !ok {
		s.log.Debug("ignoring message", zap.String("type", env.Type), zap.String("player", env.SenderID))
		return
	}
	s.apply(ctx, g, ev)
}

func (s *Session) apply(ctx context.Context, g *errgroup.Group, ev engine.Event) {
	effects, next, err := s.machine.Apply(s.snap, ev)
	if err != nil {
		if !errors.Is(err, engine.ErrNoTimer) {
			s.log.Debug("event rejected",
				zap.String("event", string(ev.Type)),
				zap.String("player", ev.SenderID),
				zap.String("phase", string(s.snap.Phase)),
				zap.Error(err))
		}
		return
	}
	if next.Phase != s.snap.Phase {
		s.log.Info("phase changed", zap.String("from", string(s.snap.Phase)), zap.String("to", string(next.Phase)))
	}
	s.snap = next
	s.runEffects(ctx, g, effects)
	s.sync(ctx)
}

// runEffects starts the content fetches the engine asked for. Results come
// back through s.results as PROVIDE_ARTICLES or ARTICLES_FAILED events.
func (s *Session) runEffects(ctx context.Context, g *errgroup.Group, effects []engine.Effect) {
	for _, eff := range effects {
		if eff.Type != engine.EffFetchArticles {
			continue
		}
		g.Go(func() error {
			ev := engine.Event{Type: engine.EvtProvideArticles, SenderID: engine.HostSenderID, PlayerID: eff.PlayerID}
			articles, err := s.opts.Provider.Articles(ctx, eff.Count)
			if err != nil {
				s.log.Warn("article fetch failed", zap.String("player", eff.PlayerID), zap.Error(err))
				select {
				case <-time.After(s.opts.RetryDelay):
				case <-ctx.Done():
					return nil
				}
				ev.Type = engine.EvtArticlesFailed
			}
			ev.Articles = articles
			select {
			case s.results <- ev:
			case <-ctx.Done():
			}
			return nil
		})
	}
}

// sync pushes every connected player its own view plus the sealed snapshot.
func (s *Session) sync(ctx context.Context) {
	sealed, err := s.sealer.Seal(s.snap)
	if err != nil {
		s.log.Error("seal snapshot", zap.Error(err))
	}
	for _, p := range s.snap.ConnectedPlayers() {
		env, err := types.NewEnvelope(types.MsgSyncState, p.ID, types.SyncStatePayload{
			State:    view.Project(s.snap, p.ID),
			Recovery: sealed,
		})
		if err != nil {
			s.log.Error("encode sync", zap.String("player", p.ID), zap.Error(err))
			continue
		}
		if err := s.t.Send(ctx, env); err != nil {
			s.log.Warn("send sync", zap.String("player", p.ID), zap.Error(err))
			return
		}
	}
}
