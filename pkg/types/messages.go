package types

import (
	"encoding/json"
	"errors"
)

var ErrEmptyPayload = errors.New("empty payload")

// Envelope is the only frame exchanged over a room connection, in both
// directions. SenderID is always stamped by the relay.
type Envelope struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Target   string          `json:"target,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
}

const (
	TargetHost = "HOST"
	TargetAll  = "ALL"
)

// Room lifecycle (relay -> client)
const (
	MsgRoomJoined         = "ROOM_JOINED"
	MsgError              = "ERROR"
	MsgPlayerConnected    = "PLAYER_CONNECTED"
	MsgPlayerDisconnected = "PLAYER_DISCONNECTED"
	MsgHostConnected      = "HOST_CONNECTED"
)

// Gameplay (player -> host, relayed)
const (
	MsgStartGame      = "START_GAME"
	MsgNextPhase      = "NEXT_PHASE"
	MsgChooseArticle  = "CHOOSE_ARTICLE"
	MsgSubmitSummary  = "SUBMIT_SUMMARY"
	MsgSubmitLie      = "SUBMIT_LIE"
	MsgSubmitVote     = "SUBMIT_VOTE"
	MsgMarkAlsoTrue   = "MARK_ALSO_TRUE"
	MsgRerollArticles = "REROLL_ARTICLES"
)

// Host broadcast and recovery
const (
	MsgSyncState            = "SYNC_STATE"
	MsgRequestStateRecovery = "REQUEST_STATE_RECOVERY"
	MsgProvideStateRecovery = "PROVIDE_STATE_RECOVERY"
)

// Error codes carried in ErrorPayload.
const (
	ErrCodeInvalidJSON  = "INVALID_JSON"
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateRoomResponse struct {
	RoomCode  string `json:"roomCode"`
	HostToken string `json:"hostToken"`
}

type RoomJoinedPayload struct {
	PlayerID       string `json:"playerId"`
	ReconnectToken string `json:"reconnectToken"`
}

type RosterEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsConnected bool   `json:"isConnected"`
}

type HostConnectedPayload struct {
	Players []RosterEntry `json:"players"`
}

type PlayerConnectedPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type PlayerDisconnectedPayload struct {
	PlayerID string `json:"playerId"`
}

type ChooseArticlePayload struct {
	ArticleID string `json:"articleId"`
}

type SubmitSummaryPayload struct {
	ArticleID string `json:"articleId"`
	Summary   string `json:"summary"`
}

type SubmitLiePayload struct {
	Text string `json:"text"`
}

type SubmitVotePayload struct {
	AnswerID string `json:"answerId"`
}

type MarkAlsoTruePayload struct {
	PlayerID string `json:"playerId"`
}

// SyncStatePayload is pushed by the host to one player after every state
// change. Recovery is the sealed full snapshot the player keeps for the host.
type SyncStatePayload struct {
	State    PlayerView `json:"state"`
	Recovery string     `json:"recovery,omitempty"`
}

type StateRecoveryPayload struct {
	Recovery string `json:"recovery"`
}

func NewEnvelope(msgType, target string, payload any) (Envelope, error) {
	env := Envelope{Type: msgType, Target: target}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(e.Payload, v)
}

func ErrorEnvelope(code, message string) Envelope {
	env, _ := NewEnvelope(MsgError, "", ErrorPayload{Code: code, Message: message})
	return env
}
