package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viki-777/colabio-backend/internal/domain"
	"github.com/viki-777/colabio-backend/internal/service"
)

func newCollab(t *testing.T, maxMoves int) (*service.CollaborationService, *service.RoomService, string) {
	t.Helper()
	rooms, _ := newRoomService(t)
	collab := service.NewCollaborationService(rooms, maxMoves)
	roomID, err := rooms.CreateRoom(context.Background(), testUser("alice"), "s1")
	require.NoError(t, err)
	return collab, rooms, roomID
}

func stroke(points ...float64) service.MoveInput {
	in := service.MoveInput{Options: domain.MoveOptions{Color: "#000000", Width: 2}}
	for i := 0; i+1 < len(points); i += 2 {
		in.Path = append(in.Path, domain.Point{X: points[i], Y: points[i+1]})
	}
	return in
}

func TestCollaborationService_DrawAssignsServerFields(t *testing.T) {
	collab, rooms, roomID := newCollab(t, 0)
	ctx := context.Background()
	fixed := time.UnixMilli(1700000000123)
	collab.SetClock(func() time.Time { return fixed })
	collab.SetIDGenerator(func() string { return "move-1" })

	move, err := collab.Draw(ctx, roomID, "s1", stroke(0, 0, 1, 1, 2, 2))

	require.NoError(t, err)
	assert.Equal(t, "move-1", move.ID)
	assert.Equal(t, int64(1700000000123), move.Timestamp)
	assert.Len(t, move.Path, 3)
	assert.Equal(t, "#000000", move.Options.Color)

	snap, _ := rooms.Snapshot(ctx, roomID)
	require.Len(t, snap.UsersMoves, 1)
	require.Len(t, snap.UsersMoves[0].Moves, 1)
	assert.Equal(t, move, snap.UsersMoves[0].Moves[0])
}

func TestCollaborationService_DrawGeneratesUniqueIDs(t *testing.T) {
	collab, _, roomID := newCollab(t, 0)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		move, err := collab.Draw(context.Background(), roomID, "s1", stroke(1, 1))
		require.NoError(t, err)
		assert.False(t, seen[move.ID])
		seen[move.ID] = true
	}
}

func TestCollaborationService_DrawRejectsEmptyPath(t *testing.T) {
	collab, _, roomID := newCollab(t, 0)
	_, err := collab.Draw(context.Background(), roomID, "s1", service.MoveInput{})
	assert.ErrorIs(t, err, service.ErrInvalidAction)
}

func TestCollaborationService_DrawOutsideRoomIsBenign(t *testing.T) {
	collab, _, roomID := newCollab(t, 0)
	ctx := context.Background()

	_, err := collab.Draw(ctx, roomID, "stranger", stroke(1, 1))
	assert.ErrorIs(t, err, service.ErrSessionNotInRoom)
	assert.True(t, service.IsBenign(err))

	_, err = collab.Draw(ctx, "GONE", "s1", stroke(1, 1))
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	assert.True(t, service.IsBenign(err))
}

func TestCollaborationService_UndoAfterDraws(t *testing.T) {
	for _, tc := range []struct{ n, m int }{{3, 0}, {3, 2}, {3, 3}, {2, 5}} {
		t.Run(fmt.Sprintf("draw_%d_undo_%d", tc.n, tc.m), func(t *testing.T) {
			collab, rooms, roomID := newCollab(t, 0)
			ctx := context.Background()
			var drawn []string
			for i := 0; i < tc.n; i++ {
				move, err := collab.Draw(ctx, roomID, "s1", stroke(float64(i), 0))
				require.NoError(t, err)
				drawn = append(drawn, move.ID)
			}
			for i := 0; i < tc.m; i++ {
				undone, ok, err := collab.Undo(ctx, roomID, "s1")
				require.NoError(t, err)
				if i < tc.n {
					assert.True(t, ok)
					assert.Equal(t, drawn[tc.n-1-i], undone.ID)
				} else {
					assert.False(t, ok)
				}
			}

			keep := tc.n - tc.m
			if keep < 0 {
				keep = 0
			}
			snap, _ := rooms.Snapshot(ctx, roomID)
			got := make([]string, 0)
			for _, m := range snap.UsersMoves[0].Moves {
				got = append(got, m.ID)
			}
			assert.Equal(t, append([]string{}, drawn[:keep]...), got)
		})
	}
}

func TestCollaborationService_UndoCannotTouchOthers(t *testing.T) {
	collab, rooms, roomID := newCollab(t, 0)
	ctx := context.Background()
	_, err := rooms.JoinRoom(ctx, roomID, testUser("bob"), "s2")
	require.NoError(t, err)

	bobMove, err := collab.Draw(ctx, roomID, "s2", stroke(5, 5))
	require.NoError(t, err)

	_, ok, err := collab.Undo(ctx, roomID, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap, _ := rooms.Snapshot(ctx, roomID)
	assert.Equal(t, bobMove.ID, snap.UsersMoves[1].Moves[0].ID)
}

func TestCollaborationService_DeleteStroke(t *testing.T) {
	collab, rooms, roomID := newCollab(t, 0)
	ctx := context.Background()
	_, err := rooms.JoinRoom(ctx, roomID, testUser("bob"), "s2")
	require.NoError(t, err)

	committed, _ := collab.Draw(ctx, roomID, "s2", stroke(1, 1))
	rooms.LeaveRoom(ctx, roomID, "s2")
	pending, _ := collab.Draw(ctx, roomID, "s1", stroke(2, 2))

	deleted, err := collab.DeleteStroke(ctx, roomID, committed.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = collab.DeleteStroke(ctx, roomID, pending.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = collab.DeleteStroke(ctx, roomID, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, deleted)

	snap, _ := rooms.Snapshot(ctx, roomID)
	assert.Empty(t, snap.Drawn)
	assert.Empty(t, snap.UsersMoves[0].Moves)
}

func TestCollaborationService_HistoryCap(t *testing.T) {
	collab, rooms, roomID := newCollab(t, 2)
	ctx := context.Background()
	first, _ := collab.Draw(ctx, roomID, "s1", stroke(1, 1))
	_, _ = collab.Draw(ctx, roomID, "s1", stroke(2, 2))
	_, _ = collab.Draw(ctx, roomID, "s1", stroke(3, 3))

	snap, _ := rooms.Snapshot(ctx, roomID)
	require.Len(t, snap.Drawn, 1)
	assert.Equal(t, first.ID, snap.Drawn[0].ID)
	assert.Len(t, snap.UsersMoves[0].Moves, 2)
}
