package engine

import (
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

func DefaultConfig() RoomConfig {
	return RoomConfig{
		MinPlayers:                    3,
		MaxPlayers:                    8,
		ResearchRounds:                3,
		ArticleOptionCount:            6,
		ResearchTimeSeconds:           60,
		WritingTimeSeconds:            240,
		LieTimeSeconds:                60,
		PresentationTimeSeconds:       600,
		VoteTimeSeconds:               30,
		RevealTimeSeconds:             15,
		EveryoneLiesChance:            0.10,
		PlayerAdditionalArticleChance: 0.5,
	}
}

func NewSnapshot(roomCode string, cfg RoomConfig) Snapshot {
	return Snapshot{
		RoomCode:         roomCode,
		Phase:            PhaseLobby,
		Players:          map[string]Player{},
		PlayerOrder:      []string{},
		Config:           cfg,
		ArticleOptions:   map[string][]Article{},
		SelectedArticles: map[string][]Article{},
		HasRerolled:      map[string]bool{},
		ArticleFetching:  map[string]bool{},
		SystemArticles:   []Article{},
		Rounds:           []Round{},
	}
}

// Clone returns a deep copy so a transition can never alias the previous
// snapshot.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Players = maps.Clone(s.Players)
	c.PlayerOrder = slices.Clone(s.PlayerOrder)
	c.Timer = cloneInt(s.Timer)
	c.ExpertReadyTimer = cloneInt(s.ExpertReadyTimer)
	c.ArticleOptions = cloneArticleMap(s.ArticleOptions)
	c.SelectedArticles = cloneArticleMap(s.SelectedArticles)
	c.HasRerolled = maps.Clone(s.HasRerolled)
	c.ArticleFetching = maps.Clone(s.ArticleFetching)
	c.SystemArticles = slices.Clone(s.SystemArticles)
	if s.Rounds != nil {
		c.Rounds = make([]Round, len(s.Rounds))
		for i, r := range s.Rounds {
			c.Rounds[i] = r.clone()
		}
	}
	return c
}

func (r Round) clone() Round {
	c := r
	c.Lies = maps.Clone(r.Lies)
	c.Votes = maps.Clone(r.Votes)
	c.MarkedTrue = slices.Clone(r.MarkedTrue)
	c.ShuffledAnswerIDs = slices.Clone(r.ShuffledAnswerIDs)
	return c
}

func cloneArticleMap(m map[string][]Article) map[string][]Article {
	if m == nil {
		return nil
	}
	c := make(map[string][]Article, len(m))
	for k, v := range m {
		c[k] = slices.Clone(v)
	}
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func seconds(n int) *int { return &n }

// CurrentRound returns the active round, if rounds exist.
func (s Snapshot) CurrentRound() (Round, bool) {
	if s.CurrentRoundIndex < 0 || s.CurrentRoundIndex >= len(s.Rounds) {
		return Round{}, false
	}
	return s.Rounds[s.CurrentRoundIndex], true
}

func (s *Snapshot) currentRound() *Round {
	if s.CurrentRoundIndex < 0 || s.CurrentRoundIndex >= len(s.Rounds) {
		return nil
	}
	return &s.Rounds[s.CurrentRoundIndex]
}

// OrderedPlayers returns the roster in join order.
func (s Snapshot) OrderedPlayers() []Player {
	out := make([]Player, 0, len(s.PlayerOrder))
	for _, id := range s.PlayerOrder {
		if p, ok := s.Players[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s Snapshot) ConnectedPlayers() []Player {
	var out []Player
	for _, p := range s.OrderedPlayers() {
		if p.IsConnected {
			out = append(out, p)
		}
	}
	return out
}

// VisibleOptions is the slice of a player's options currently offered:
// the first three, or the next three after a reroll.
func (s Snapshot) VisibleOptions(playerID string) []Article {
	opts := s.ArticleOptions[playerID]
	lo, hi := 0, min(VisibleOptionCount, len(opts))
	if s.HasRerolled[playerID] && len(opts) > VisibleOptionCount {
		lo, hi = VisibleOptionCount, min(2*VisibleOptionCount, len(opts))
	}
	return opts[lo:hi]
}

// RequiredSelections is how many chosen articles each player must hold by
// the end of the current research round.
func (s Snapshot) RequiredSelections() int { return s.ResearchRoundIndex + 1 }

func cleanText(text string, maxLen int) (string, bool) {
	t := strings.TrimSpace(norm.NFC.String(text))
	n := utf8.RuneCountInString(t)
	return t, n > 0 && n <= maxLen
}

// Rand is the randomness the machine draws on. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) Float64() float64                   { return rand.Float64() }
func (globalRand) IntN(n int) int                     { return rand.IntN(n) }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }
