package session

import (
	"sync"

	"github.com/camstream/camstream/pkg/network"
)

// Registry is the lookup table of live sessions.
// It only holds references, sessions are driven by their own goroutines.
type Registry struct {
	mu       sync.Mutex
	sessions map[network.Uid]*Session
	cameras  map[string][]network.Uid
	multi    bool
}

// NewRegistry makes a registry. With multiViewer set, a camera may have
// any number of sessions of the same role, one per viewer.
func NewRegistry(multiViewer bool) *Registry {
	return &Registry{
		sessions: make(map[network.Uid]*Session, 16),
		cameras:  make(map[string][]network.Uid, 16),
		multi:    multiViewer,
	}
}

// Create allocates a new session id and registers the session made by build.
// It fails with ErrDuplicateSession if the camera already has a session
// of the same role and multiple viewers are not allowed.
func (r *Registry) Create(cameraId string, role Role, build func(id network.Uid) *Session) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.multi {
		for _, id := range r.cameras[cameraId] {
			if r.sessions[id].role == role {
				return nil, ErrDuplicateSession
			}
		}
	}
	id := network.NewUid()
	s := build(id)
	r.sessions[id] = s
	r.cameras[cameraId] = append(r.cameras[cameraId], id)
	return s, nil
}

func (r *Registry) Get(id network.Uid) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// ListByCamera returns the sessions of a camera in the creation order.
func (r *Registry) ListByCamera(cameraId string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.cameras[cameraId]
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.sessions[id])
	}
	return out
}

// List returns all the sessions.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, ids := range r.cameras {
		for _, id := range ids {
			out = append(out, r.sessions[id])
		}
	}
	return out
}

// Remove deletes a session, it's fine to remove a missing one.
func (r *Registry) Remove(id network.Uid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	ids := r.cameras[s.cameraId]
	for i, x := range ids {
		if x == id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.cameras, s.cameraId)
	} else {
		r.cameras[s.cameraId] = ids
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
