package devserver_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastagame/basta-client/internal"
	"github.com/bastagame/basta-client/internal/devserver"
	"github.com/bastagame/basta-client/internal/game"
	"github.com/bastagame/basta-client/internal/realtime"
	"github.com/bastagame/basta-client/internal/service"
)

const (
	eventuallyTimeout = 3 * time.Second
	eventuallyTick    = 10 * time.Millisecond
)

type staticIdentity struct {
	userId string
}

func (s staticIdentity) Current() internal.Identity {
	return internal.Identity{UserId: s.userId, IsAuthenticated: true}
}

func newPlayer(srvURL, userId string) *game.Coordinator {
	client := service.NewClient(srvURL)
	client.UserId = userId
	return game.NewCoordinator(staticIdentity{userId}, client)
}

// TestFullGameOverTheWire drives a two-player game through the real HTTP and
// websocket surfaces: create, join, ready-up, start, BASTA, results, next
// round and leave, with each side converging on the other's actions purely
// through the change feed.
func TestFullGameOverTheWire(t *testing.T) {
	srv := httptest.NewServer(devserver.NewServer().RegisterRoutes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := newPlayer(srv.URL, "host-1")
	guest := newPlayer(srv.URL, "guest-1")

	// Theme and category reference data.
	themes, err := host.Themes(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, themes)
	themeId := themes[0].Id

	cats, err := host.LoadCategories(ctx, themeId)
	require.NoError(t, err)
	require.Len(t, cats, 7)
	_, err = guest.LoadCategories(ctx, themeId)
	require.NoError(t, err)

	// Host creates, both subscribe, guest joins by (lowercased) code.
	created, err := host.CreateRoom(ctx, themeId, 4)
	require.NoError(t, err)
	roomId := created.Id

	hostFeed, err := realtime.Subscribe(ctx, srv.URL, roomId, host)
	require.NoError(t, err)
	defer hostFeed.Close()

	joined, err := guest.JoinRoom(ctx, toLower(created.RoomCode), "Beto")
	require.NoError(t, err)
	require.Equal(t, roomId, joined.Id)
	require.Len(t, joined.Participants, 2)

	guestFeed, err := realtime.Subscribe(ctx, srv.URL, roomId, guest)
	require.NoError(t, err)
	defer guestFeed.Close()

	// The host only learns about the guest through the feed.
	require.Eventually(t, func() bool {
		return len(host.Participants()) == 2
	}, eventuallyTimeout, eventuallyTick, "host never saw the guest join")
	assert.True(t, host.IsCurrentUserHost())
	assert.False(t, guest.IsCurrentUserHost())

	// Guest refreshes once so its roster carries the host entry too.
	_, err = guest.FetchRoomDetails(ctx, roomId)
	require.NoError(t, err)
	require.Len(t, guest.Participants(), 2)

	// Ready-up propagates as partial participant patches.
	require.NoError(t, host.SetMyReadyStatus(ctx, true))
	require.NoError(t, guest.SetMyReadyStatus(ctx, true))
	require.Eventually(t, func() bool {
		for _, p := range host.Participants() {
			if !p.IsReady {
				return false
			}
		}
		return len(host.Participants()) == 2
	}, eventuallyTimeout, eventuallyTick, "readiness never converged on the host")

	// Non-host cannot start; the host can.
	assert.ErrorIs(t, guest.StartGame(ctx), game.ErrNotHost)
	require.NoError(t, host.StartGame(ctx))

	require.Eventually(t, func() bool {
		snap := guest.Snapshot()
		return snap != nil && snap.Status == internal.StatusInProgress
	}, eventuallyTimeout, eventuallyTick, "guest never saw the game start")
	require.Eventually(t, func() bool {
		snap := host.Snapshot()
		return snap != nil && snap.Status == internal.StatusInProgress
	}, eventuallyTimeout, eventuallyTick, "host never saw the game start")

	// Entering in_progress armed a fresh sheet on both sides.
	letter := guest.Snapshot().CurrentLetter
	require.Len(t, letter, 1)
	require.NotNil(t, guest.CurrentAnswers())
	require.NotNil(t, host.CurrentAnswers())

	// Guest fills an answer that matches the letter and calls BASTA.
	require.True(t, guest.UpdateAnswer(cats[0].Id, letter+"adrid"))
	assert.Equal(t, 100, guest.PreviewScores()[cats[0].Id])
	require.NoError(t, guest.PlayerSaysBasta(ctx, guest.CurrentAnswers()))

	require.Eventually(t, func() bool {
		snap := host.Snapshot()
		return snap != nil && snap.Status == internal.StatusRoundOverResults
	}, eventuallyTimeout, eventuallyTick, "host never saw the round stop")
	require.Eventually(t, func() bool {
		snap := guest.Snapshot()
		return snap != nil && snap.Status == internal.StatusRoundOverResults
	}, eventuallyTimeout, eventuallyTick, "guest never saw the round stop")
	assert.NotEmpty(t, host.Snapshot().BastaCallerId)

	// Authoritative results come from the service, not the preview.
	payload, err := host.FetchRoundResults(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"letter":"`+letter+`"`)
	require.Eventually(t, func() bool {
		for _, p := range host.Participants() {
			if p.UserId == "guest-1" && p.Score == 100 {
				return true
			}
		}
		return false
	}, eventuallyTimeout, eventuallyTick, "guest score never reached the host roster")

	// Host advances; a second round means a fresh letter and cleared caller.
	assert.ErrorIs(t, guest.GoToNextRound(ctx), game.ErrNotHost)
	require.NoError(t, host.GoToNextRound(ctx))
	require.Eventually(t, func() bool {
		snap := guest.Snapshot()
		return snap != nil && snap.Status == internal.StatusInProgress && snap.CurrentRoundNumber == 2
	}, eventuallyTimeout, eventuallyTick, "guest never saw round two")
	assert.Empty(t, guest.Snapshot().BastaCallerId)

	// Guest leaves; the host's roster shrinks via the feed and the guest's
	// local snapshot is gone regardless.
	require.NoError(t, guest.LeaveRoom(ctx))
	assert.False(t, guest.HasActiveRoom())
	require.Eventually(t, func() bool {
		return len(host.Participants()) == 1
	}, eventuallyTimeout, eventuallyTick, "host never saw the guest leave")
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
