package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/protocol"
)

func TestWelcomeAnonymous(t *testing.T) {
	h := newHarness(t)
	svc := NewObserverService(h.deps)
	h.cv.Grid.SetCell(5, 10, "#FF00FF", &model.Author{UserID: "alice", Name: "Alice"})
	anon, sock := h.connect("c-anon", nil, false)

	svc.Welcome(anon)

	frames := drain(t, sock)
	require.Equal(t, []string{
		protocol.OutIdentity,
		protocol.OutGridSize,
		protocol.OutFullGrid,
		protocol.OutFullAuthorData,
		protocol.OutReadonly,
	}, types(frames))
	assert.JSONEq(t, "null", string(frames[0].Payload))

	full := decode[protocol.FullGridPayload](t, frames[2])
	assert.Equal(t, "#FF00FF", full.Colors[10][5])
	assert.Equal(t, model.EmptyColor, full.Colors[5][10])

	authors := decode[protocol.FullAuthorPayload](t, frames[3])
	require.NotNil(t, authors.Authors[10][5])
	assert.Equal(t, "alice", authors.Authors[10][5].UserID)
	assert.Nil(t, authors.Authors[0][0])

	assert.False(t, decode[bool](t, frames[4]))
	assert.False(t, h.hub.InRoom("c-anon", broadcast.RoomAdmin))
}

func TestWelcomeAdmin(t *testing.T) {
	h := newHarness(t)
	svc := NewObserverService(h.deps)
	boss, sock := h.connect("c-boss", identity("boss", "Boss"), true)

	svc.Welcome(boss)

	frames := drain(t, sock)
	assert.Equal(t, []string{
		protocol.OutIdentity,
		protocol.OutGridSize,
		protocol.OutFullGrid,
		protocol.OutFullAuthorData,
		protocol.OutReadonly,
		protocol.OutBannedUsers,
		protocol.OutConfigValues,
	}, types(frames))
	id := decode[model.Identity](t, frames[0])
	assert.Equal(t, "boss", id.SubjectID)
	assert.True(t, h.hub.InRoom("c-boss", broadcast.RoomAdmin))
}

func TestPublicConfigValue(t *testing.T) {
	tests := []struct {
		key       string
		wantReply bool
	}{
		{key: model.KeyPixelTimeoutMS, wantReply: true},
		{key: model.KeyAutomodStrict, wantReply: false},
		{key: "does_not_exist", wantReply: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			h := newHarness(t)
			svc := NewObserverService(h.deps)
			caller, sock := h.connect("c1", nil, false)

			assert.Equal(t, tt.wantReply, svc.PublicConfigValue(caller, tt.key))

			frames := drain(t, sock)
			if !tt.wantReply {
				assert.Empty(t, frames)
				return
			}
			require.Len(t, frames, 1)
			got := decode[protocol.ConfigValuePayload](t, frames[0])
			assert.Equal(t, tt.key, got.Key)
			assert.EqualValues(t, 30000, got.Value)
		})
	}
}

func TestCheckReadonly(t *testing.T) {
	h := newHarness(t)
	svc := NewObserverService(h.deps)
	caller, sock := h.connect("c1", nil, false)
	setConfig(t, h, model.KeyReadonly, true)

	svc.CheckReadonly(caller)

	frames := drain(t, sock)
	require.Len(t, frames, 1)
	assert.True(t, decode[bool](t, frames[0]))
}

func TestJoinStatsIsIdempotent(t *testing.T) {
	h := newHarness(t)
	svc := NewObserverService(h.deps)
	caller, sock := h.connect("c1", nil, false)

	svc.JoinStats(caller)
	svc.JoinStats(caller)

	frames := drain(t, sock)
	require.Equal(t, []string{protocol.OutStats, protocol.OutStats}, types(frames))
	stats := decode[map[string]int64](t, frames[0])
	assert.Contains(t, stats, model.StatConnectedUsers)

	h.hub.Room(broadcast.RoomStats, statsMessage(h.cv.Stats))
	assert.Len(t, drain(t, sock), 1, "one membership, one frame")
}

func TestPresenceChanged(t *testing.T) {
	h := newHarness(t)
	svc := NewObserverService(h.deps)
	h.hub.SetPresenceHook(svc.PresenceChanged)
	_, watcher := h.connect("c-watch", nil, false)
	h.hub.Join("c-watch", broadcast.RoomStats)

	h.connect("c-a1", identity("alice", "Alice"), false)
	h.connect("c-a2", identity("alice", "Alice"), false)
	_, bobSock := h.connect("c-b", identity("bob", "Bob"), false)

	v, _ := h.cv.Stats.Get(model.StatConnectedUsers)
	assert.Equal(t, int64(2), v, "two sockets of one identity count once")

	h.hub.Unregister(bobSock)
	v, _ = h.cv.Stats.Get(model.StatConnectedUsers)
	assert.Equal(t, int64(1), v)

	frames := only(drain(t, watcher), protocol.OutStats)
	require.NotEmpty(t, frames)
	assert.Equal(t, int64(1), decode[map[string]int64](t, frames[len(frames)-1])[model.StatConnectedUsers])
}
