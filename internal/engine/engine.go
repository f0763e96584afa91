package engine

import "slices"

// maxSettleSteps bounds the chain of automatic transitions one event can
// trigger.
const maxSettleSteps = 8

type Machine struct {
	rng Rand
}

// NewMachine returns a machine drawing on rng, or on the global source
// when rng is nil.
func NewMachine(rng Rand) *Machine {
	if rng == nil {
		rng = globalRand{}
	}
	return &Machine{rng: rng}
}

// Apply computes the snapshot following ev. On error the input snapshot is
// returned untouched; callers treat that as a rejected, ignorable event.
func (m *Machine) Apply(s Snapshot, ev Event) ([]Effect, Snapshot, error) {
	if s.Phase == PhaseLeaderboard && ev.Type != EvtPlayerConnected && ev.Type != EvtPlayerDisconnected {
		return nil, s, ErrGameCompleted
	}

	next := s.Clone()
	if err := m.dispatch(&next, ev); err != nil {
		return nil, s, err
	}
	m.settle(&next)
	return requestArticles(&next), next, nil
}

func (m *Machine) dispatch(s *Snapshot, ev Event) error {
	switch ev.Type {
	case EvtPlayerConnected:
		return m.connectPlayer(s, ev)
	case EvtPlayerDisconnected:
		return disconnectPlayer(s, ev)
	case EvtProvideArticles:
		return provideArticles(s, ev)
	case EvtArticlesFailed:
		delete(s.ArticleFetching, ev.PlayerID)
		return nil
	case EvtTimerTick:
		return m.tick(s)
	}

	switch {
	case s.Phase == PhaseLobby && ev.Type == EvtStartGame:
		return startGame(s, ev)
	case s.Phase == PhaseTutorial && ev.Type == EvtNextPhase:
		if !canAdvanceManually(*s, ev.SenderID) {
			return ErrNotVIP
		}
		enterTopicSelection(s)
		return nil
	case s.Phase == PhaseTopicSelection && ev.Type == EvtRerollArticles:
		return rerollArticles(s, ev)
	case s.Phase == PhaseTopicSelection && ev.Type == EvtChooseArticle:
		return chooseArticle(s, ev)
	case s.Phase == PhaseTopicSelection && ev.Type == EvtNextPhase:
		if !canAdvanceManually(*s, ev.SenderID) {
			return ErrNotVIP
		}
		enterWriting(s)
		return nil
	case s.Phase == PhaseWriting && ev.Type == EvtSubmitSummary:
		return submitSummary(s, ev)
	case s.Phase == PhaseGuessing && ev.Type == EvtSubmitLie:
		return submitLie(s, ev)
	case s.Phase == PhasePresenting && ev.Type == EvtNextPhase:
		if !canAdvanceManually(*s, ev.SenderID) {
			return ErrNotVIP
		}
		enterVoting(s)
		return nil
	case s.Phase == PhaseVoting && ev.Type == EvtSubmitVote:
		return submitVote(s, ev)
	case s.Phase == PhaseVoting && ev.Type == EvtMarkAlsoTrue:
		return markAlsoTrue(s, ev)
	case s.Phase == PhaseReveal && ev.Type == EvtNextPhase:
		if !canAdvanceManually(*s, ev.SenderID) {
			return ErrNotVIP
		}
		m.advanceRound(s)
		return nil
	}

	switch ev.Type {
	case EvtStartGame, EvtNextPhase, EvtRerollArticles, EvtChooseArticle,
		EvtSubmitSummary, EvtSubmitLie, EvtSubmitVote, EvtMarkAlsoTrue:
		return ErrWrongPhase
	}
	return ErrUnsupportedEvent
}

// settle runs the automatic (guard-only) transitions until none applies.
func (m *Machine) settle(s *Snapshot) {
	for range maxSettleSteps {
		startExpertCountdown(s)
		switch {
		case s.Phase == PhaseTopicSelection && allPlayersChoseArticle(*s):
			enterWriting(s)
		case s.Phase == PhaseWriting && allPlayersSubmittedSummary(*s):
			m.finishResearch(s)
		case s.Phase == PhaseGuessing && allPlayersSubmittedLie(*s):
			m.enterPresenting(s)
		case s.Phase == PhaseVoting && allPlayersVoted(*s):
			enterReveal(s)
		default:
			return
		}
	}
}

func (m *Machine) tick(s *Snapshot) error {
	if s.Timer == nil && s.ExpertReadyTimer == nil {
		return ErrNoTimer
	}
	if s.ExpertReadyTimer != nil {
		left := max(0, *s.ExpertReadyTimer-1)
		s.ExpertReadyTimer = &left
		if left == 0 {
			s.ExpertReady = true
			s.ExpertReadyTimer = nil
		}
	}
	if s.Timer != nil {
		if *s.Timer <= 0 {
			m.expire(s)
			return nil
		}
		left := *s.Timer - 1
		s.Timer = &left
	}
	return nil
}

// expire handles a tick that arrives with the phase timer at zero.
func (m *Machine) expire(s *Snapshot) {
	switch s.Phase {
	case PhaseTopicSelection:
		enterWriting(s)
	case PhaseWriting:
		m.finishResearch(s)
	case PhaseGuessing:
		m.enterPresenting(s)
	case PhasePresenting:
		enterVoting(s)
	case PhaseVoting:
		enterReveal(s)
	case PhaseReveal:
		m.advanceRound(s)
	default:
		s.Timer = nil
	}
}

func (m *Machine) connectPlayer(s *Snapshot, ev Event) error {
	if ev.PlayerID == "" {
		return ErrUnknownPlayer
	}
	if p, ok := s.Players[ev.PlayerID]; ok {
		p.IsConnected = true
		s.Players[ev.PlayerID] = p
		return nil
	}
	if len(s.Players) >= s.Config.MaxPlayers {
		return ErrRoomFull
	}

	name, ok := cleanText(ev.PlayerName, MaxNameLength)
	if !ok {
		name = ev.PlayerID
	}
	s.Players[ev.PlayerID] = Player{
		ID:          ev.PlayerID,
		Name:        name,
		IsVIP:       len(s.Players) == 0,
		IsConnected: true,
		AvatarID:    m.rng.IntN(10),
	}
	s.PlayerOrder = append(s.PlayerOrder, ev.PlayerID)
	return nil
}

func disconnectPlayer(s *Snapshot, ev Event) error {
	p, ok := s.Players[ev.PlayerID]
	if !ok {
		return ErrUnknownPlayer
	}
	p.IsConnected = false
	s.Players[ev.PlayerID] = p
	return nil
}

func provideArticles(s *Snapshot, ev Event) error {
	if ev.PlayerID == SystemPlayerID {
		s.SystemArticles = append(s.SystemArticles, ev.Articles...)
		delete(s.ArticleFetching, SystemPlayerID)
		return nil
	}
	if _, ok := s.Players[ev.PlayerID]; !ok {
		return ErrUnknownPlayer
	}
	s.ArticleOptions[ev.PlayerID] = slices.Clone(ev.Articles)
	delete(s.ArticleFetching, ev.PlayerID)
	return nil
}

func startGame(s *Snapshot, ev Event) error {
	if !senderIsVIP(*s, ev.SenderID) {
		return ErrNotVIP
	}
	if !enoughPlayers(*s) {
		return ErrNotEnoughPlayers
	}
	s.Phase = PhaseTutorial
	s.Timer = nil
	return nil
}

func rerollArticles(s *Snapshot, ev Event) error {
	if _, ok := s.Players[ev.SenderID]; !ok {
		return ErrUnknownPlayer
	}
	if !canReroll(*s, ev.SenderID) {
		return ErrAlreadyRerolled
	}
	s.HasRerolled[ev.SenderID] = true
	return nil
}

func chooseArticle(s *Snapshot, ev Event) error {
	if _, ok := s.Players[ev.SenderID]; !ok {
		return ErrUnknownPlayer
	}
	if len(s.SelectedArticles[ev.SenderID]) >= s.RequiredSelections() {
		return ErrAlreadyChosen
	}
	i := slices.IndexFunc(s.VisibleOptions(ev.SenderID), func(a Article) bool { return a.ID == ev.ArticleID })
	if i < 0 {
		return ErrInvalidArticle
	}
	chosen := s.VisibleOptions(ev.SenderID)[i]
	chosen.Summary = ""
	s.SelectedArticles[ev.SenderID] = append(s.SelectedArticles[ev.SenderID], chosen)
	delete(s.ArticleOptions, ev.SenderID)
	return nil
}

func submitSummary(s *Snapshot, ev Event) error {
	articles := s.SelectedArticles[ev.SenderID]
	i := slices.IndexFunc(articles, func(a Article) bool { return a.ID == ev.ArticleID })
	if i < 0 {
		return ErrInvalidArticle
	}
	if articles[i].Summary != "" {
		return ErrAlreadySubmitted
	}
	text, ok := cleanText(ev.Text, MaxTextLength)
	if !ok {
		return ErrInvalidText
	}
	articles[i].Summary = text
	return nil
}

func submitLie(s *Snapshot, ev Event) error {
	r := s.currentRound()
	if r == nil {
		return ErrWrongPhase
	}
	if _, ok := s.Players[ev.SenderID]; !ok {
		return ErrUnknownPlayer
	}
	if ev.SenderID == r.TargetPlayerID {
		// Recorded but not shown: the expert's ready flag follows the
		// countdown so the roster does not reveal who the expert is.
		s.ExpertSubmitted = true
		return nil
	}
	if _, done := r.Lies[ev.SenderID]; done {
		return ErrAlreadySubmitted
	}
	text, ok := cleanText(ev.Text, MaxTextLength)
	if !ok {
		return ErrInvalidText
	}
	r.Lies[ev.SenderID] = text
	return nil
}

func submitVote(s *Snapshot, ev Event) error {
	r := s.currentRound()
	if r == nil {
		return ErrWrongPhase
	}
	if _, ok := s.Players[ev.SenderID]; !ok {
		return ErrUnknownPlayer
	}
	if ev.SenderID == r.TargetPlayerID {
		return ErrExpertCannot
	}
	if _, done := r.Votes[ev.SenderID]; done {
		return ErrAlreadySubmitted
	}
	if ev.AnswerID == ev.SenderID || !slices.Contains(r.ShuffledAnswerIDs, ev.AnswerID) {
		return ErrInvalidAnswer
	}
	r.Votes[ev.SenderID] = ev.AnswerID
	return nil
}

func markAlsoTrue(s *Snapshot, ev Event) error {
	r := s.currentRound()
	if r == nil {
		return ErrWrongPhase
	}
	isExpert := !r.IsEveryoneLies && ev.SenderID == r.TargetPlayerID
	if !isExpert && ev.SenderID != HostSenderID {
		return ErrNotExpert
	}
	if _, ok := r.Lies[ev.PlayerID]; !ok {
		return ErrInvalidAnswer
	}
	if !slices.Contains(r.MarkedTrue, ev.PlayerID) {
		r.MarkedTrue = append(r.MarkedTrue, ev.PlayerID)
	}
	return nil
}

// startExpertCountdown arms the expert-ready delay once half of the
// non-experts have submitted in the current guessing or voting phase.
func startExpertCountdown(s *Snapshot) {
	if s.ExpertReady || s.ExpertReadyTimer != nil {
		return
	}
	r, ok := s.CurrentRound()
	if !ok {
		return
	}
	var submitted int
	switch s.Phase {
	case PhaseGuessing:
		submitted = len(r.Lies)
	case PhaseVoting:
		submitted = len(r.Votes)
	default:
		return
	}
	n := len(nonExperts(*s, r))
	if submitted >= (n+1)/2 {
		s.ExpertReadyTimer = seconds(ExpertReadyDelaySec)
	}
}

// requestArticles marks and returns the content fetches topic selection is
// still waiting on.
func requestArticles(s *Snapshot) []Effect {
	if s.Phase != PhaseTopicSelection {
		return nil
	}
	var effects []Effect
	if len(s.SystemArticles) < SystemArticlePool && !s.ArticleFetching[SystemPlayerID] {
		s.ArticleFetching[SystemPlayerID] = true
		effects = append(effects, Effect{Type: EffFetchArticles, PlayerID: SystemPlayerID, Count: SystemArticlePool})
	}
	for _, p := range s.ConnectedPlayers() {
		if len(s.ArticleOptions[p.ID]) > 0 || s.ArticleFetching[p.ID] {
			continue
		}
		if len(s.SelectedArticles[p.ID]) >= s.RequiredSelections() {
			continue
		}
		s.ArticleFetching[p.ID] = true
		effects = append(effects, Effect{Type: EffFetchArticles, PlayerID: p.ID, Count: s.Config.ArticleOptionCount})
	}
	return effects
}
