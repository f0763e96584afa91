package types

// PlayerView is the restricted state one player's client receives.
type PlayerView struct {
	RoomCode string                  `json:"roomCode"`
	Phase    string                  `json:"phase"`
	PlayerID string                  `json:"playerId"`
	Players  map[string]PublicPlayer `json:"players"`
	Timer    *int                    `json:"timer"`

	ResearchRoundIndex int           `json:"researchRoundIndex"`
	ArticleOptions     []ArticleView `json:"articleOptions,omitempty"`
	CanReroll          bool          `json:"canReroll,omitempty"`
	CurrentArticle     *ArticleView  `json:"currentArticle,omitempty"`

	RoundNumber  int      `json:"roundNumber,omitempty"`
	RoundCount   int      `json:"roundCount,omitempty"`
	ArticleTitle string   `json:"articleTitle,omitempty"`
	IsExpert     bool     `json:"isExpert,omitempty"`
	MySubmission string   `json:"mySubmission,omitempty"`
	Answers      []Answer `json:"answers,omitempty"`
	Submitted    []string `json:"submitted,omitempty"`
	HasSubmitted bool     `json:"hasSubmitted"`
	HasVoted     bool     `json:"hasVoted"`
	Reveal       *Reveal  `json:"reveal,omitempty"`
}

type PublicPlayer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	IsVIP       bool   `json:"isVip"`
	IsConnected bool   `json:"isConnected"`
	AvatarID    int    `json:"avatarId"`
}

type ArticleView struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	URL     string `json:"url"`
	Extract string `json:"extract,omitempty"`
}

type Answer struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Reveal is only filled once the round's votes are final.
type Reveal struct {
	ExpertID       string            `json:"expertId"`
	IsEveryoneLies bool              `json:"isEveryoneLies"`
	Votes          map[string]string `json:"votes"`
	MarkedTrue     []string          `json:"markedTrue"`
}
