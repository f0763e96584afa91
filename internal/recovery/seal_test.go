package recovery

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
)

func votingSnapshot() engine.Snapshot {
	s := engine.NewSnapshot("QWE123", engine.DefaultConfig())
	for i, id := range []string{"p1", "p2", "p3"} {
		s.Players[id] = engine.Player{ID: id, Name: "player " + id, Score: 500 * i, IsVIP: i == 0, IsConnected: true, AvatarID: i}
		s.PlayerOrder = append(s.PlayerOrder, id)
	}
	timer := 17
	s.Phase = engine.PhaseVoting
	s.Timer = &timer
	s.ResearchRoundIndex = 2
	s.SelectedArticles["p1"] = []engine.Article{{ID: "a1", Title: "Ants", Summary: "small", URL: "https://example.org/a1", Extract: "Ants are insects."}}
	s.HasRerolled["p2"] = true
	s.SystemArticles = []engine.Article{{ID: "sys", Title: "Sys", URL: "https://example.org/sys"}}
	s.Rounds = []engine.Round{{
		TargetPlayerID:    "p1",
		Article:           s.SelectedArticles["p1"][0],
		Lies:              map[string]string{"p2": "big", "p3": "tiny"},
		Votes:             map[string]string{"p2": "p1"},
		MarkedTrue:        []string{"p3"},
		ShuffledAnswerIDs: []string{"p3", "p1", "p2"},
	}}
	return s
}

func TestSealUnseal_RoundTrip(t *testing.T) {
	sealer, err := NewSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	want := votingSnapshot()
	env, err := sealer.Seal(want)
	require.NoError(t, err)

	got, err := sealer.Unseal(env)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	sealer, err := NewSealer("token")
	require.NoError(t, err)

	a, err := sealer.Seal(votingSnapshot())
	require.NoError(t, err)
	b, err := sealer.Seal(votingSnapshot())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestUnseal_Failures(t *testing.T) {
	owner, err := NewSealer("host-token-one")
	require.NoError(t, err)
	env, err := owner.Seal(votingSnapshot())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(env)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	// Tokens that only differ past 32 characters must not share a key.
	longA, err := NewSealer("0123456789abcdef0123456789abcdefAAAA")
	require.NoError(t, err)
	longB, err := NewSealer("0123456789abcdef0123456789abcdefBBBB")
	require.NoError(t, err)
	longEnv, err := longA.Seal(votingSnapshot())
	require.NoError(t, err)

	other, err := NewSealer("host-token-two")
	require.NoError(t, err)

	cases := []struct {
		name     string
		sealer   *Sealer
		envelope string
	}{
		{"wrong token", other, env},
		{"tampered", owner, tampered},
		{"not base64", owner, "%%%"},
		{"too short", owner, base64.StdEncoding.EncodeToString([]byte("abc"))},
		{"long tokens", longB, longEnv},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.sealer.Unseal(tc.envelope)
			assert.ErrorIs(t, err, ErrUnseal)
		})
	}
}

func TestNewSealer_EmptyToken(t *testing.T) {
	_, err := NewSealer("")
	assert.ErrorIs(t, err, ErrEmptyToken)
}
