package consultation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	messages map[uuid.UUID][]Message
	ids      map[uuid.UUID]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		messages: make(map[uuid.UUID][]Message),
		ids:      make(map[uuid.UUID]struct{}),
	}
}

func (r *MemoryRepository) InsertMessage(_ context.Context, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[m.ID]; ok {
		return ErrDuplicateMessage
	}
	r.ids[m.ID] = struct{}{}
	thread := append(r.messages[m.AppointmentID], *m)
	sort.SliceStable(thread, func(i, j int) bool { return thread[i].CreatedAt.Before(thread[j].CreatedAt) })
	r.messages[m.AppointmentID] = thread
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, appointmentID uuid.UUID, p Page) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Message
	for _, m := range r.messages[appointmentID] {
		if !p.After.IsZero() && !m.CreatedAt.After(p.After) {
			continue
		}
		result = append(result, m)
		if p.Limit > 0 && len(result) == p.Limit {
			break
		}
	}
	return result, nil
}
