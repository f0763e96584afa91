package engine

import (
	"maps"
	"slices"
)

func enterTopicSelection(s *Snapshot) {
	s.Phase = PhaseTopicSelection
	s.Timer = seconds(s.Config.ResearchTimeSeconds)
}

func enterWriting(s *Snapshot) {
	s.Phase = PhaseWriting
	s.Timer = seconds(s.Config.WritingTimeSeconds)
}

func (m *Machine) finishResearch(s *Snapshot) {
	if hasMoreResearchRounds(*s) {
		s.ResearchRoundIndex++
		s.HasRerolled = map[string]bool{}
		s.ArticleFetching = map[string]bool{}
		enterTopicSelection(s)
		return
	}
	m.setupRounds(s)
	if len(s.Rounds) == 0 {
		enterLeaderboard(s)
		return
	}
	enterGuessing(s)
}

func enterGuessing(s *Snapshot) {
	r, _ := s.CurrentRound()
	s.Phase = PhaseGuessing
	s.Timer = seconds(s.Config.LieTimeSeconds)
	s.ExpertReady = r.IsEveryoneLies
	s.ExpertReadyTimer = nil
	s.ExpertSubmitted = false
}

func (m *Machine) enterPresenting(s *Snapshot) {
	if r := s.currentRound(); r != nil {
		r.ShuffledAnswerIDs = m.shuffleAnswers(*r)
	}
	s.Phase = PhasePresenting
	s.Timer = seconds(s.Config.PresentationTimeSeconds)
	s.ExpertReadyTimer = nil
}

func enterVoting(s *Snapshot) {
	r, _ := s.CurrentRound()
	s.Phase = PhaseVoting
	s.Timer = seconds(s.Config.VoteTimeSeconds)
	s.ExpertReady = r.IsEveryoneLies
	s.ExpertReadyTimer = nil
}

func enterReveal(s *Snapshot) {
	s.Phase = PhaseReveal
	s.Timer = seconds(s.Config.RevealTimeSeconds)
	s.ExpertReadyTimer = nil
	if r, ok := s.CurrentRound(); ok {
		scoreRound(s.Players, r)
	}
}

func (m *Machine) advanceRound(s *Snapshot) {
	if hasMoreRounds(*s) {
		s.CurrentRoundIndex++
		enterGuessing(s)
		return
	}
	enterLeaderboard(s)
}

func enterLeaderboard(s *Snapshot) {
	s.Phase = PhaseLeaderboard
	s.Timer = nil
	s.ExpertReadyTimer = nil
}

// setupRounds builds one round per kept (player, article) pair, shuffles
// them, then swaps some for everyone-lies rounds on system articles.
func (m *Machine) setupRounds(s *Snapshot) {
	rounds := []Round{}
	for _, pid := range s.PlayerOrder {
		for i, a := range s.SelectedArticles[pid] {
			if i > 0 && m.rng.Float64() >= s.Config.PlayerAdditionalArticleChance {
				continue
			}
			rounds = append(rounds, newRound(pid, a))
		}
	}

	m.rng.Shuffle(len(rounds), func(i, j int) { rounds[i], rounds[j] = rounds[j], rounds[i] })

	next := 0
	for i := range rounds {
		if next >= len(s.SystemArticles) {
			break
		}
		if m.rng.Float64() < s.Config.EveryoneLiesChance {
			rounds[i].Article = s.SystemArticles[next]
			rounds[i].TargetPlayerID = NoExpertID
			rounds[i].IsEveryoneLies = true
			next++
		}
	}

	s.Rounds = rounds
	s.CurrentRoundIndex = 0
}

func newRound(target string, a Article) Round {
	return Round{
		TargetPlayerID: target,
		Article:        a,
		Lies:           map[string]string{},
		Votes:          map[string]string{},
		MarkedTrue:     []string{},
	}
}

// shuffleAnswers returns every lie author plus the expert, in random order.
func (m *Machine) shuffleAnswers(r Round) []string {
	ids := slices.Sorted(maps.Keys(r.Lies))
	if !r.IsEveryoneLies {
		ids = append(ids, r.TargetPlayerID)
	}
	m.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// scoreRound pays 500 to voters who found the truth (or a lie marked as
// also true) and 700 to the author of every lie that fooled someone.
func scoreRound(players map[string]Player, r Round) {
	for _, voterID := range slices.Sorted(maps.Keys(r.Votes)) {
		if voterID == r.TargetPlayerID {
			continue
		}
		answerID := r.Votes[voterID]
		correct := (!r.IsEveryoneLies && answerID == r.TargetPlayerID) || slices.Contains(r.MarkedTrue, answerID)

		winner := answerID
		points := PointsForFooling
		if correct {
			winner = voterID
			points = PointsForCorrectVote
		}
		if p, ok := players[winner]; ok {
			p.Score += points
			players[winner] = p
		}
	}
}
