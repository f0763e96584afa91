package host

import (
	"github.com/DoyleJ11/nofus-backend/internal/engine"
	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

// toEvent maps a relayed envelope onto an engine event. The sender comes
// from the relay stamp, never from the payload.
func toEvent(env types.Envelope) (engine.Event, bool) {
	ev := engine.Event{SenderID: env.SenderID}
	if env.SenderID == "" {
		return ev, false
	}

	switch env.Type {
	case types.MsgPlayerConnected:
		var p types.PlayerConnectedPayload
		if env.Decode(&p) != nil || p.PlayerID != env.SenderID {
			return ev, false
		}
		ev.Type, ev.PlayerID, ev.PlayerName = engine.EvtPlayerConnected, p.PlayerID, p.PlayerName

	case types.MsgPlayerDisconnected:
		var p types.PlayerDisconnectedPayload
		if env.Decode(&p) != nil || p.PlayerID != env.SenderID {
			return ev, false
		}
		ev.Type, ev.PlayerID = engine.EvtPlayerDisconnected, p.PlayerID

	case types.MsgStartGame:
		ev.Type = engine.EvtStartGame
	case types.MsgNextPhase:
		ev.Type = engine.EvtNextPhase
	case types.MsgRerollArticles:
		ev.Type = engine.EvtRerollArticles

	case types.MsgChooseArticle:
		var p types.ChooseArticlePayload
		if env.Decode(&p) != nil {
			return ev, false
		}
		ev.Type, ev.ArticleID = engine.EvtChooseArticle, p.ArticleID

	case types.MsgSubmitSummary:
		var p types.SubmitSummaryPayload
		if env.Decode(&p) != nil {
			return ev, false
		}
		ev.Type, ev.ArticleID, ev.Text = engine.EvtSubmitSummary, p.ArticleID, p.Summary

	case types.MsgSubmitLie:
		var p types.SubmitLiePayload
		if env.Decode(&p) != nil {
			return ev, false
		}
		ev.Type, ev.Text = engine.EvtSubmitLie, p.Text

	case types.MsgSubmitVote:
		var p types.SubmitVotePayload
		if env.Decode(&p) != nil {
			return ev, false
		}
		ev.Type, ev.AnswerID = engine.EvtSubmitVote, p.AnswerID

	case types.MsgMarkAlsoTrue:
		var p types.MarkAlsoTruePayload
		if env.Decode(&p) != nil {
			return ev, false
		}
		ev.Type, ev.PlayerID = engine.EvtMarkAlsoTrue, p.PlayerID

	default:
		return ev, false
	}
	return ev, true
}
