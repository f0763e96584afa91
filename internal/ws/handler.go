package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/nofus-backend/internal/hub"
	"github.com/DoyleJ11/nofus-backend/internal/room"
	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

const (
	outboxSize   = 64
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

type Options struct {
	MsgRate      rate.Limit
	MsgBurst     int
	PingInterval time.Duration
	Logger       *zap.Logger
}

type role int

const (
	roleHost role = iota
	rolePlayer
)

// Handler upgrades GET /api/v1/rooms/{code}/ws. The query selects the role:
// token alone is the host, name alone a new player, and name with playerId
// and token a reconnecting player.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MsgRate == 0 {
		opts.MsgRate = rate.Inf
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 25 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		rm := h.Get(code)
		if rm == nil {
			writeError(w, http.StatusNotFound, "Room not found")
			return
		}

		q := r.URL.Query()
		token, name, playerID := q.Get("token"), q.Get("name"), q.Get("playerId")

		var (
			who    role
			joined room.JoinResult
			fresh  bool
			err    error
		)
		switch {
		case token != "" && name == "" && playerID == "":
			if !rm.CheckHostToken(token) {
				writeError(w, http.StatusUnauthorized, "Invalid host token")
				return
			}
			who = roleHost
		case name != "" && playerID != "" && token != "":
			if joined, err = rm.Reconnect(playerID, token); err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid reconnection")
				return
			}
			who = rolePlayer
		case name != "":
			if joined, err = rm.Join(name); err != nil {
				writeError(w, http.StatusBadRequest, joinMessage(err))
				return
			}
			who, fresh = rolePlayer, true
		default:
			writeError(w, http.StatusBadRequest, "Invalid connection parameters")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			if fresh {
				rm.Abandon(joined.PlayerID)
			}
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		log := opts.Logger.With(zap.String("room", code))
		connID := uuid.NewString()
		out := make(chan types.Envelope, outboxSize)

		switch who {
		case roleHost:
			err = rm.AttachHost(connID, out)
		default:
			log = log.With(zap.String("player", joined.PlayerID))
			err = rm.AttachPlayer(joined.PlayerID, connID, out)
		}
		if err != nil {
			log.Info("attach failed", zap.Error(err))
			if fresh {
				rm.Abandon(joined.PlayerID)
			}
			writeEnvelope(r.Context(), conn, types.ErrorEnvelope(types.ErrCodeRoomNotFound, "Room does not exist"))
			conn.Close(websocket.StatusPolicyViolation, "room not found")
			return
		}
		defer rm.Detach(connID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writeLoop(ctx, cancel, conn, out, opts.PingInterval, log)

		limiter := rate.NewLimiter(opts.MsgRate, opts.MsgBurst)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Info("invalid envelope", zap.Error(err))
				writeEnvelope(ctx, conn, types.ErrorEnvelope(types.ErrCodeInvalidJSON, "Failed to parse message"))
				continue
			}
			if !limiter.Allow() {
				writeEnvelope(ctx, conn, types.ErrorEnvelope(types.ErrCodeRateLimited, "Too many messages"))
				continue
			}
			rm.Route(connID, env)
		}
	}
}

// writeLoop drains the outbox until the room closes it, pinging the peer in
// between. It cancels the reader when it stops.
func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan types.Envelope, every time.Duration, log *zap.Logger) {
	defer cancel()
	ping := time.NewTicker(every)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "connection replaced or closed")
				return
			}
			if err := writeEnvelope(ctx, conn, env); err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env types.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func joinMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrHostNotConnected):
		return "Host not connected"
	case errors.Is(err, room.ErrInvalidName):
		return "Invalid player name"
	default:
		return "Failed to add player"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}
