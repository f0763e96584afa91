package engine

import "errors"

var ErrUnsupportedEvent = errors.New("unsupported event")
var ErrWrongPhase = errors.New("event not accepted in current phase")
var ErrGameCompleted = errors.New("game already completed")
var ErrNotVIP = errors.New("sender is not the vip")
var ErrNotExpert = errors.New("sender is not the expert")
var ErrNotEnoughPlayers = errors.New("not enough connected players")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrRoomFull = errors.New("room is full")
var ErrInvalidArticle = errors.New("invalid article")
var ErrAlreadyChosen = errors.New("required articles already chosen")
var ErrAlreadyRerolled = errors.New("articles already rerolled")
var ErrAlreadySubmitted = errors.New("already submitted")
var ErrExpertCannot = errors.New("expert cannot perform this action")
var ErrInvalidAnswer = errors.New("invalid answer")
var ErrInvalidText = errors.New("invalid text")
var ErrNoTimer = errors.New("no timer running")

type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseTutorial       Phase = "tutorial"
	PhaseTopicSelection Phase = "topicSelection"
	PhaseWriting        Phase = "writing"
	PhaseGuessing       Phase = "guessing"
	PhasePresenting     Phase = "presenting"
	PhaseVoting         Phase = "voting"
	PhaseReveal         Phase = "reveal"
	PhaseLeaderboard    Phase = "leaderboard"
)

const (
	// HostSenderID is the sender stamped by the relay on host messages.
	HostSenderID = "HOST"
	// SystemPlayerID owns the article pool used for everyone-lies rounds.
	SystemPlayerID = "SYSTEM"
	// NoExpertID is the target of an everyone-lies round.
	NoExpertID = "NONE"
)

const (
	PointsForCorrectVote = 500
	PointsForFooling     = 700

	ExpertReadyDelaySec = 2
	SystemArticlePool   = 3
	VisibleOptionCount  = 3

	MaxNameLength = 20
	MaxTextLength = 500
)

type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	IsVIP       bool   `json:"isVip"`
	IsConnected bool   `json:"isConnected"`
	AvatarID    int    `json:"avatarId"`
}

type Article struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
	Extract string `json:"extract,omitempty"`
}

type Round struct {
	TargetPlayerID string            `json:"targetPlayerId"`
	Article        Article           `json:"article"`
	Lies           map[string]string `json:"lies"`
	Votes          map[string]string `json:"votes"`
	MarkedTrue     []string          `json:"markedTrue"`
	IsEveryoneLies bool              `json:"isEveryoneLies"`
	// ShuffledAnswerIDs is nil until the round leaves guessing.
	ShuffledAnswerIDs []string `json:"shuffledAnswerIds"`
}

type RoomConfig struct {
	MinPlayers                    int     `json:"minPlayers"`
	MaxPlayers                    int     `json:"maxPlayers"`
	ResearchRounds                int     `json:"researchRounds"`
	ArticleOptionCount            int     `json:"articleOptionCount"`
	ResearchTimeSeconds           int     `json:"researchTimeSeconds"`
	WritingTimeSeconds            int     `json:"writingTimeSeconds"`
	LieTimeSeconds                int     `json:"lieTimeSeconds"`
	PresentationTimeSeconds       int     `json:"presentationTimeSeconds"`
	VoteTimeSeconds               int     `json:"voteTimeSeconds"`
	RevealTimeSeconds             int     `json:"revealTimeSeconds"`
	EveryoneLiesChance            float64 `json:"everyoneLiesChance"`
	PlayerAdditionalArticleChance float64 `json:"playerAdditionalArticleChance"`
}

// Snapshot is the complete authoritative game state. It is treated as an
// immutable value: Apply never mutates the snapshot it is given.
type Snapshot struct {
	RoomCode    string            `json:"roomCode"`
	Phase       Phase             `json:"phase"`
	Players     map[string]Player `json:"players"`
	PlayerOrder []string          `json:"playerOrder"`
	Config      RoomConfig        `json:"config"`
	Timer       *int              `json:"timer"`

	ResearchRoundIndex int                  `json:"researchRoundIndex"`
	ArticleOptions     map[string][]Article `json:"articleOptions"`
	SelectedArticles   map[string][]Article `json:"selectedArticles"`
	HasRerolled        map[string]bool      `json:"hasRerolled"`
	ArticleFetching    map[string]bool      `json:"articleFetching"`
	SystemArticles     []Article            `json:"systemArticles"`

	Rounds            []Round `json:"rounds"`
	CurrentRoundIndex int     `json:"currentRoundIndex"`

	ExpertReady      bool `json:"expertReady"`
	ExpertReadyTimer *int `json:"expertReadyTimer"`
	ExpertSubmitted  bool `json:"expertSubmitted"`
}

type EventType string

const (
	EvtPlayerConnected    EventType = "PLAYER_CONNECTED"
	EvtPlayerDisconnected EventType = "PLAYER_DISCONNECTED"
	EvtStartGame          EventType = "START_GAME"
	EvtNextPhase          EventType = "NEXT_PHASE"
	EvtProvideArticles    EventType = "PROVIDE_ARTICLES"
	EvtArticlesFailed     EventType = "ARTICLES_FAILED"
	EvtRerollArticles     EventType = "REROLL_ARTICLES"
	EvtChooseArticle      EventType = "CHOOSE_ARTICLE"
	EvtSubmitSummary      EventType = "SUBMIT_SUMMARY"
	EvtSubmitLie          EventType = "SUBMIT_LIE"
	EvtSubmitVote         EventType = "SUBMIT_VOTE"
	EvtMarkAlsoTrue       EventType = "MARK_ALSO_TRUE"
	EvtTimerTick          EventType = "TIMER_TICK"
)

// Event is everything the machine consumes. Only the fields relevant to
// Type are set.
type Event struct {
	Type       EventType
	SenderID   string
	PlayerID   string
	PlayerName string
	ArticleID  string
	AnswerID   string
	Text       string
	Articles   []Article
}

type EffectType string

const (
	EffFetchArticles EffectType = "FetchArticles"
)

// Effect is work the caller must perform outside the reducer. Results come
// back as events.
type Effect struct {
	Type     EffectType
	PlayerID string
	Count    int
}
