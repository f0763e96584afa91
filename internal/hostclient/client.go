package hostclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

const (
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
)

var ErrClosed = errors.New("hostclient: connection closed")

// CreateRoom asks the relay for a new room.
func CreateRoom(ctx context.Context, client *http.Client, relayURL string) (types.CreateRoomResponse, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(relayURL, "/")+"/api/v1/rooms", nil)
	if err != nil {
		return types.CreateRoomResponse{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return types.CreateRoomResponse{}, fmt.Errorf("hostclient: create room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return types.CreateRoomResponse{}, fmt.Errorf("hostclient: create room: unexpected status %d", resp.StatusCode)
	}
	var out types.CreateRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.CreateRoomResponse{}, fmt.Errorf("hostclient: decode room: %w", err)
	}
	return out, nil
}

// Conn is a host connection to the relay.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to the room as its host.
func Dial(ctx context.Context, relayURL, roomCode, hostToken string) (*Conn, error) {
	u, err := HostURL(relayURL, roomCode, hostToken)
	if err != nil {
		return nil, err
	}
	c, resp, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("hostclient: dial %s: status %d: %w", roomCode, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("hostclient: dial %s: %w", roomCode, err)
	}
	c.SetReadLimit(readLimit)
	return &Conn{ws: c}, nil
}

// HostURL builds the WebSocket URL for the host role.
func HostURL(relayURL, roomCode, hostToken string) (string, error) {
	u, err := url.Parse(strings.TrimRight(relayURL, "/"))
	if err != nil {
		return "", fmt.Errorf("hostclient: relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("hostclient: unsupported relay scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/rooms/" + url.PathEscape(roomCode) + "/ws"
	u.RawQuery = url.Values{"token": {hostToken}}.Encode()
	return u.String(), nil
}

func (c *Conn) Send(ctx context.Context, env types.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("hostclient: send %s: %w", env.Type, err)
	}
	return nil
}

// Recv returns the next envelope. Frames that are not valid envelopes are
// skipped.
func (c *Conn) Recv(ctx context.Context) (types.Envelope, error) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return types.Envelope{}, ErrClosed
			}
			return types.Envelope{}, err
		}
		var env types.Envelope
		if json.Unmarshal(data, &env) == nil {
			return env, nil
		}
	}
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "host leaving")
}
