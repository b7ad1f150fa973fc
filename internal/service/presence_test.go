package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viki-777/colabio-backend/internal/service"
)

func TestPresenceService_FirstAndLastSession(t *testing.T) {
	p := service.NewPresenceService()

	assert.True(t, p.AddSession("ROOM", "alice", "tab-1"), "first tab announces the user")
	assert.False(t, p.AddSession("ROOM", "alice", "tab-2"), "second tab is silent")
	assert.Equal(t, 2, p.SessionCount("ROOM", "alice"))

	assert.False(t, p.RemoveSession("ROOM", "alice", "tab-1"), "user still has tab-2")
	assert.True(t, p.RemoveSession("ROOM", "alice", "tab-2"), "last tab leaves completely")

	assert.Equal(t, 0, p.SessionCount("ROOM", "alice"))
	assert.False(t, p.HasRoom("ROOM"), "empty room entry is pruned")
}

func TestPresenceService_RoomsAreIndependent(t *testing.T) {
	p := service.NewPresenceService()

	assert.True(t, p.AddSession("R1", "alice", "tab-1"))
	assert.True(t, p.AddSession("R2", "alice", "tab-2"))
	assert.True(t, p.AddSession("R1", "bob", "tab-3"))

	assert.Equal(t, []string{"alice", "bob"}, p.Users("R1"))
	assert.Equal(t, []string{"alice"}, p.Users("R2"))

	assert.True(t, p.RemoveSession("R2", "alice", "tab-2"))
	assert.Equal(t, 1, p.SessionCount("R1", "alice"))
}

func TestPresenceService_RemoveUnknownIsNoop(t *testing.T) {
	p := service.NewPresenceService()
	assert.False(t, p.RemoveSession("nope", "alice", "tab-1"))

	p.AddSession("ROOM", "alice", "tab-1")
	assert.False(t, p.RemoveSession("ROOM", "bob", "tab-1"))
	assert.False(t, p.RemoveSession("ROOM", "alice", "tab-9"))
	assert.Equal(t, 1, p.SessionCount("ROOM", "alice"))
}

func TestPresenceService_DuplicateAddCountsOnce(t *testing.T) {
	p := service.NewPresenceService()
	assert.True(t, p.AddSession("ROOM", "alice", "tab-1"))
	assert.False(t, p.AddSession("ROOM", "alice", "tab-1"))
	assert.True(t, p.RemoveSession("ROOM", "alice", "tab-1"))
}
