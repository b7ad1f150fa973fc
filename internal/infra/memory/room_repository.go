package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/viki-777/colabio-backend/internal/domain"
	"github.com/viki-777/colabio-backend/internal/repository"
)

// RoomRepository 是 RoomRepository 接口的进程内存实现。
// Rooms live only as long as the process.
type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

// NewRoomRepository 创建一个空的内存房间仓库
func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[string]*domain.Room)}
}

// FindByID 根据房间 ID 查找房间
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return room, nil
}

// IsRoomIDExists 检查房间码是否已被占用
func (r *RoomRepository) IsRoomIDExists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[id]
	return ok, nil
}

// Create 插入新房间
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		return repository.ErrDuplicateEntry
	}
	r.rooms[room.ID] = room
	return nil
}

// Delete 删除房间
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.rooms, id)
	r.mu.Unlock()
	return nil
}

// FindAll returns the live rooms ordered by id.
func (r *RoomRepository) FindAll(ctx context.Context) ([]*domain.Room, error) {
	r.mu.RLock()
	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}
