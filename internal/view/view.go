// Package view derives the per-player projection of the authoritative
// snapshot. Nothing in a PlayerView lets a player learn another player's
// answer before the answers are shuffled, or learn who the expert is.
package view

import (
	"maps"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

func Project(s engine.Snapshot, playerID string) types.PlayerView {
	v := types.PlayerView{
		RoomCode:           s.RoomCode,
		Phase:              string(s.Phase),
		PlayerID:           playerID,
		Players:            publicPlayers(s),
		ResearchRoundIndex: s.ResearchRoundIndex,
	}
	if s.Timer != nil {
		t := *s.Timer
		v.Timer = &t
	}

	switch s.Phase {
	case engine.PhaseTopicSelection:
		v.ArticleOptions = articleViews(s.VisibleOptions(playerID))
		v.CanReroll = len(s.ArticleOptions[playerID]) > engine.VisibleOptionCount && !s.HasRerolled[playerID]
		v.CurrentArticle = activeArticle(s.SelectedArticles[playerID])
		v.HasSubmitted = len(s.SelectedArticles[playerID]) >= s.RequiredSelections()
	case engine.PhaseWriting:
		v.CurrentArticle = activeArticle(s.SelectedArticles[playerID])
		v.HasSubmitted = summaryCount(s.SelectedArticles[playerID]) >= s.RequiredSelections()
	case engine.PhaseGuessing, engine.PhasePresenting, engine.PhaseVoting, engine.PhaseReveal:
		projectRound(&v, s, playerID)
	}
	return v
}

func projectRound(v *types.PlayerView, s engine.Snapshot, playerID string) {
	r, ok := s.CurrentRound()
	if !ok {
		return
	}
	isExpert := !r.IsEveryoneLies && playerID == r.TargetPlayerID

	v.RoundNumber = s.CurrentRoundIndex + 1
	v.RoundCount = len(s.Rounds)
	v.ArticleTitle = r.Article.Title
	v.IsExpert = isExpert
	_, v.HasVoted = r.Votes[playerID]

	if isExpert {
		a := articleView(r.Article)
		v.CurrentArticle = &a
		v.MySubmission = r.Article.Summary
		v.HasSubmitted = s.ExpertSubmitted || s.ExpertReady
	} else {
		v.MySubmission, v.HasSubmitted = r.Lies[playerID]
	}

	switch s.Phase {
	case engine.PhaseGuessing:
		v.Submitted = submitted(s, r, r.Lies)
	case engine.PhaseVoting:
		v.Submitted = submitted(s, r, r.Votes)
	}

	if s.Phase == engine.PhaseGuessing {
		return
	}
	v.Answers = make([]types.Answer, 0, len(r.ShuffledAnswerIDs))
	for _, id := range r.ShuffledAnswerIDs {
		text := r.Lies[id]
		if !r.IsEveryoneLies && id == r.TargetPlayerID {
			text = r.Article.Summary
		}
		v.Answers = append(v.Answers, types.Answer{ID: id, Text: text})
	}

	if s.Phase == engine.PhaseReveal {
		v.Reveal = &types.Reveal{
			ExpertID:       r.TargetPlayerID,
			IsEveryoneLies: r.IsEveryoneLies,
			Votes:          maps.Clone(r.Votes),
			MarkedTrue:     append([]string(nil), r.MarkedTrue...),
		}
	}
}

// submitted lists, in roster order, who is shown as done. The expert only
// appears once the delayed ready flag is set.
func submitted(s engine.Snapshot, r engine.Round, done map[string]string) []string {
	var out []string
	for _, id := range s.PlayerOrder {
		if _, ok := done[id]; ok {
			out = append(out, id)
			continue
		}
		if !r.IsEveryoneLies && id == r.TargetPlayerID && s.ExpertReady {
			out = append(out, id)
		}
	}
	return out
}

func publicPlayers(s engine.Snapshot) map[string]types.PublicPlayer {
	out := make(map[string]types.PublicPlayer, len(s.Players))
	for id, p := range s.Players {
		out[id] = types.PublicPlayer{
			ID:          p.ID,
			Name:        p.Name,
			Score:       p.Score,
			IsVIP:       p.IsVIP,
			IsConnected: p.IsConnected,
			AvatarID:    p.AvatarID,
		}
	}
	return out
}

// activeArticle is the first selected article still missing a summary, or
// the latest one.
func activeArticle(selected []engine.Article) *types.ArticleView {
	if len(selected) == 0 {
		return nil
	}
	active := selected[len(selected)-1]
	for _, a := range selected {
		if a.Summary == "" {
			active = a
			break
		}
	}
	a := articleView(active)
	return &a
}

func summaryCount(selected []engine.Article) int {
	n := 0
	for _, a := range selected {
		if a.Summary != "" {
			n++
		}
	}
	return n
}

func articleViews(articles []engine.Article) []types.ArticleView {
	if len(articles) == 0 {
		return nil
	}
	out := make([]types.ArticleView, len(articles))
	for i, a := range articles {
		out[i] = articleView(a)
	}
	return out
}

func articleView(a engine.Article) types.ArticleView {
	return types.ArticleView{ID: a.ID, Title: a.Title, Summary: a.Summary, URL: a.URL, Extract: a.Extract}
}
