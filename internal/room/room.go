package room

import (
	"context"
	"crypto/subtle"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

const (
	MaxNameLength = 20
	inboxSize     = 64
)

var (
	ErrHostNotConnected = errors.New("room: host not connected")
	ErrInvalidName      = errors.New("room: invalid player name")
	ErrInvalidReconnect = errors.New("room: invalid reconnection")
	ErrRoomClosed       = errors.New("room: closed")
)

type Msg interface{ isRoomMsg() }

// JoinResult identifies a player record that a connection may attach to.
type JoinResult struct {
	PlayerID       string
	Name           string
	ReconnectToken string
}

type join struct {
	Name  string
	Reply chan joinReply
}

type reconnect struct {
	PlayerID string
	Token    string
	Reply    chan joinReply
}

type joinReply struct {
	Result JoinResult
	Err    error
}

type attachHost struct {
	ConnID string
	Outbox chan types.Envelope
	Reply  chan error
}

type attachPlayer struct {
	PlayerID string
	ConnID   string
	Outbox   chan types.Envelope
	Reply    chan error
}

type detach struct{ ConnID string }

type abandon struct{ PlayerID string }

type route struct {
	ConnID string
	Env    types.Envelope
}

type getView struct{ Reply chan View }

type shutdown struct{}

func (join) isRoomMsg()         {}
func (reconnect) isRoomMsg()    {}
func (attachHost) isRoomMsg()   {}
func (attachPlayer) isRoomMsg() {}
func (detach) isRoomMsg()       {}
func (abandon) isRoomMsg()      {}
func (route) isRoomMsg()        {}
func (getView) isRoomMsg()      {}
func (shutdown) isRoomMsg()     {}

// View is a read-only picture of membership, for tests and diagnostics.
type View struct {
	Code          string
	HostConnected bool
	Players       []types.RosterEntry
}

type conn struct {
	id     string
	outbox chan types.Envelope
}

type member struct {
	id             string
	name           string
	reconnectToken string
	conn           *conn
	attached       bool
}

// Room owns the membership of one game: the host slot, player records with
// their reconnection tokens, and the open connection of each. All of it is
// touched only by the room's own goroutine.
type Room struct {
	Code      string
	hostToken string

	inbox   chan Msg
	host    *conn
	members map[string]*member
	order   []string
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger

	openConns  atomic.Int32
	lastActive atomic.Int64
}

func New(parent context.Context, code, hostToken string, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		Code:      code,
		hostToken: hostToken,
		inbox:     make(chan Msg, inboxSize),
		members:   make(map[string]*member),
		ctx:       ctx,
		cancel:    cancel,
		log:       log.With(zap.String("room", code)),
	}
	r.touch()
	go r.loop()
	return r
}

// CheckHostToken reports whether token is this room's host token.
func (r *Room) CheckHostToken(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(r.hostToken)) == 1
}

// IdleFor reports how long the room has had no open connection, or zero
// while any connection is open.
func (r *Room) IdleFor(now time.Time) time.Duration {
	if r.openConns.Load() > 0 {
		return 0
	}
	return now.Sub(time.Unix(0, r.lastActive.Load()))
}

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Join allocates a new player record. It fails while no host is attached.
func (r *Room) Join(name string) (JoinResult, error) {
	reply := make(chan joinReply, 1)
	if !r.send(join{Name: name, Reply: reply}) {
		return JoinResult{}, ErrRoomClosed
	}
	return r.awaitJoin(reply)
}

// Reconnect validates a player id and reconnection token pair.
func (r *Room) Reconnect(playerID, token string) (JoinResult, error) {
	reply := make(chan joinReply, 1)
	if !r.send(reconnect{PlayerID: playerID, Token: token, Reply: reply}) {
		return JoinResult{}, ErrRoomClosed
	}
	return r.awaitJoin(reply)
}

// AttachHost makes connID the host connection, replacing any previous one.
// From then on only the room closes outbox.
func (r *Room) AttachHost(connID string, outbox chan types.Envelope) error {
	reply := make(chan error, 1)
	if !r.send(attachHost{ConnID: connID, Outbox: outbox, Reply: reply}) {
		return ErrRoomClosed
	}
	return r.await(reply)
}

// AttachPlayer binds connID to an already joined player. Ownership of
// outbox follows the same rules as AttachHost once it returns nil.
func (r *Room) AttachPlayer(playerID, connID string, outbox chan types.Envelope) error {
	reply := make(chan error, 1)
	if !r.send(attachPlayer{PlayerID: playerID, ConnID: connID, Outbox: outbox, Reply: reply}) {
		return ErrRoomClosed
	}
	return r.await(reply)
}

// Detach clears the slot held by connID. Stale ids are ignored.
func (r *Room) Detach(connID string) { r.send(detach{ConnID: connID}) }

// Abandon forgets a joined player that never attached, so a failed upgrade
// leaves no record behind. Players that attached once are kept.
func (r *Room) Abandon(playerID string) { r.send(abandon{PlayerID: playerID}) }

// Route forwards env from connID according to its target.
func (r *Room) Route(connID string, env types.Envelope) { r.send(route{ConnID: connID, Env: env}) }

func (r *Room) Snapshot() (View, error) {
	reply := make(chan View, 1)
	if !r.send(getView{Reply: reply}) {
		return View{}, ErrRoomClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, ErrRoomClosed
	}
}

// Shutdown closes every connection outbox and stops the room.
func (r *Room) Shutdown() { r.send(shutdown{}) }

func (r *Room) send(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) await(reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		return ErrRoomClosed
	}
}

func (r *Room) awaitJoin(reply <-chan joinReply) (JoinResult, error) {
	select {
	case res := <-reply:
		return res.Result, res.Err
	case <-r.ctx.Done():
		return JoinResult{}, ErrRoomClosed
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case join:
				res, err := r.join(msg.Name)
				msg.Reply <- joinReply{Result: res, Err: err}

			case reconnect:
				res, err := r.reconnect(msg.PlayerID, msg.Token)
				msg.Reply <- joinReply{Result: res, Err: err}

			case attachHost:
				r.attachHost(msg)
				msg.Reply <- nil

			case attachPlayer:
				msg.Reply <- r.attachPlayer(msg)

			case detach:
				r.detach(msg.ConnID)

			case abandon:
				r.abandon(msg.PlayerID)

			case route:
				r.route(msg.ConnID, msg.Env)

			case getView:
				msg.Reply <- r.view()

			case shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) join(name string) (JoinResult, error) {
	if r.host == nil {
		return JoinResult{}, ErrHostNotConnected
	}
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return JoinResult{}, ErrInvalidName
	}
	m := &member{id: uuid.NewString(), name: name, reconnectToken: uuid.NewString()}
	r.members[m.id] = m
	r.order = append(r.order, m.id)
	r.log.Info("player joined", zap.String("player", m.id), zap.String("name", name))
	return m.result(), nil
}

func (r *Room) reconnect(playerID, token string) (JoinResult, error) {
	m, ok := r.members[playerID]
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(m.reconnectToken)) != 1 {
		return JoinResult{}, ErrInvalidReconnect
	}
	return m.result(), nil
}

func (r *Room) attachHost(msg attachHost) {
	if r.host != nil {
		r.closeConn(r.host)
	}
	r.host = r.openConn(msg.ConnID, msg.Outbox)
	r.log.Info("host connected")

	roster := make([]types.RosterEntry, 0, len(r.order))
	for _, id := range r.order {
		m := r.members[id]
		roster = append(roster, types.RosterEntry{ID: m.id, Name: m.name, IsConnected: m.conn != nil})
	}
	r.notify(types.MsgHostConnected, r.host, types.HostConnectedPayload{Players: roster}, types.TargetHost)
}

func (r *Room) attachPlayer(msg attachPlayer) error {
	m, ok := r.members[msg.PlayerID]
	if !ok {
		return ErrInvalidReconnect
	}
	if m.conn != nil {
		r.closeConn(m.conn)
	}
	m.conn = r.openConn(msg.ConnID, msg.Outbox)
	m.attached = true
	r.log.Info("player connected", zap.String("player", m.id))

	r.notify(types.MsgRoomJoined, m.conn, types.RoomJoinedPayload{PlayerID: m.id, ReconnectToken: m.reconnectToken}, "")
	r.notify(types.MsgPlayerConnected, r.host, types.PlayerConnectedPayload{PlayerID: m.id, PlayerName: m.name}, m.id)
	return nil
}

func (r *Room) detach(connID string) {
	if r.host != nil && r.host.id == connID {
		r.closeConn(r.host)
		r.host = nil
		r.log.Info("host disconnected")
		return
	}
	for _, m := range r.members {
		if m.conn != nil && m.conn.id == connID {
			r.dropPlayer(m)
			return
		}
	}
}

func (r *Room) abandon(playerID string) {
	m, ok := r.members[playerID]
	if !ok || m.attached {
		return
	}
	delete(r.members, playerID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == playerID })
	r.log.Info("player abandoned", zap.String("player", playerID))
}

func (r *Room) dropPlayer(m *member) {
	r.closeConn(m.conn)
	m.conn = nil
	r.log.Info("player disconnected", zap.String("player", m.id))
	r.notify(types.MsgPlayerDisconnected, r.host, types.PlayerDisconnectedPayload{PlayerID: m.id}, m.id)
}

// relayOnly are the types only the room itself may emit.
var relayOnly = map[string]bool{
	types.MsgRoomJoined:         true,
	types.MsgError:              true,
	types.MsgPlayerConnected:    true,
	types.MsgPlayerDisconnected: true,
	types.MsgHostConnected:      true,
}

// route stamps the sender and delivers env to HOST, ALL other players, or
// one player. Envelopes from unknown connections are dropped.
func (r *Room) route(connID string, env types.Envelope) {
	sender, ok := r.senderOf(connID)
	if !ok || relayOnly[env.Type] {
		return
	}
	target := env.Target
	env.SenderID = sender
	env.Target = ""

	switch target {
	case "":
		return
	case types.TargetHost:
		if sender != types.TargetHost {
			r.deliver(r.host, env)
		}
	case types.TargetAll:
		for _, id := range r.order {
			if id != sender {
				r.deliver(r.members[id].conn, env)
			}
		}
	default:
		if m, ok := r.members[target]; ok {
			r.deliver(m.conn, env)
		}
	}
}

func (r *Room) senderOf(connID string) (string, bool) {
	if r.host != nil && r.host.id == connID {
		return types.TargetHost, true
	}
	for _, m := range r.members {
		if m.conn != nil && m.conn.id == connID {
			return m.id, true
		}
	}
	return "", false
}

func (r *Room) notify(msgType string, c *conn, payload any, sender string) {
	env, err := types.NewEnvelope(msgType, "", payload)
	if err != nil {
		r.log.Error("encode notification", zap.String("type", msgType), zap.Error(err))
		return
	}
	env.SenderID = sender
	r.deliver(c, env)
}

// deliver never blocks the room. A connection whose outbox is full is
// dropped and must reconnect.
func (r *Room) deliver(c *conn, env types.Envelope) {
	if c == nil {
		return
	}
	select {
	case c.outbox <- env:
	default:
		r.log.Warn("dropping slow connection", zap.String("conn", c.id))
		if r.host == c {
			r.closeConn(c)
			r.host = nil
			return
		}
		for _, m := range r.members {
			if m.conn == c {
				r.dropPlayer(m)
				return
			}
		}
	}
}

func (r *Room) openConn(id string, outbox chan types.Envelope) *conn {
	r.openConns.Add(1)
	r.touch()
	return &conn{id: id, outbox: outbox}
}

func (r *Room) closeConn(c *conn) {
	close(c.outbox)
	r.openConns.Add(-1)
	r.touch()
}

func (r *Room) touch() { r.lastActive.Store(time.Now().UnixNano()) }

func (r *Room) view() View {
	v := View{Code: r.Code, HostConnected: r.host != nil}
	for _, id := range r.order {
		m := r.members[id]
		v.Players = append(v.Players, types.RosterEntry{ID: m.id, Name: m.name, IsConnected: m.conn != nil})
	}
	return v
}

func (r *Room) shutdown() {
	if r.host != nil {
		r.closeConn(r.host)
		r.host = nil
	}
	for _, m := range r.members {
		if m.conn != nil {
			r.closeConn(m.conn)
			m.conn = nil
		}
	}
	r.cancel()
	r.log.Info("room closed")
}

func (m *member) result() JoinResult {
	return JoinResult{PlayerID: m.id, Name: m.name, ReconnectToken: m.reconnectToken}
}
