package repository

import (
	"context"

	"github.com/viki-777/colabio-backend/internal/domain"
)

// RoomRepository 定义了房间的存储和检索操作。
// The returned *domain.Room is the live record; callers serialize mutation.
type RoomRepository interface {
	// FindByID returns ErrRoomNotFound when no room has the id.
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// IsRoomIDExists reports whether a room code is taken.
	IsRoomIDExists(ctx context.Context, id string) (bool, error)

	// Create inserts a new room. Returns ErrDuplicateEntry if the id is taken.
	Create(ctx context.Context, room *domain.Room) error

	// Delete removes a room. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// FindAll lists every live room, used by the idle sweep and stats.
	FindAll(ctx context.Context) ([]*domain.Room, error)
}
