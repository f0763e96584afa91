package engine

// Guards are pure predicates over a snapshot. "Every player" guards only
// count connected players and need at least one of them.

func senderIsVIP(s Snapshot, senderID string) bool {
	p, ok := s.Players[senderID]
	return ok && p.IsVIP
}

func canAdvanceManually(s Snapshot, senderID string) bool {
	return senderID == HostSenderID || senderIsVIP(s, senderID)
}

func enoughPlayers(s Snapshot) bool {
	return len(s.ConnectedPlayers()) >= s.Config.MinPlayers
}

func hasMoreResearchRounds(s Snapshot) bool {
	return s.ResearchRoundIndex < s.Config.ResearchRounds-1
}

func hasMoreRounds(s Snapshot) bool {
	return s.CurrentRoundIndex < len(s.Rounds)-1
}

func canReroll(s Snapshot, senderID string) bool {
	return len(s.ArticleOptions[senderID]) > 0 && !s.HasRerolled[senderID]
}

func allPlayersChoseArticle(s Snapshot) bool {
	players := s.ConnectedPlayers()
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if len(s.SelectedArticles[p.ID]) < s.RequiredSelections() {
			return false
		}
	}
	return true
}

func allPlayersSubmittedSummary(s Snapshot) bool {
	players := s.ConnectedPlayers()
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		done := 0
		for _, a := range s.SelectedArticles[p.ID] {
			if a.Summary != "" {
				done++
			}
		}
		if done < s.RequiredSelections() {
			return false
		}
	}
	return true
}

// nonExperts returns the connected players expected to lie and vote in the
// current round.
func nonExperts(s Snapshot, r Round) []Player {
	var out []Player
	for _, p := range s.ConnectedPlayers() {
		if p.ID != r.TargetPlayerID {
			out = append(out, p)
		}
	}
	return out
}

func allPlayersSubmittedLie(s Snapshot) bool {
	r, ok := s.CurrentRound()
	if !ok {
		return false
	}
	return coveredBy(nonExperts(s, r), r.Lies) && s.ExpertReady
}

func allPlayersVoted(s Snapshot) bool {
	r, ok := s.CurrentRound()
	if !ok {
		return false
	}
	return coveredBy(nonExperts(s, r), r.Votes) && s.ExpertReady
}

func coveredBy(players []Player, submissions map[string]string) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if _, ok := submissions[p.ID]; !ok {
			return false
		}
	}
	return true
}
