package manager

import (
	"sync"

	"github.com/camstream/camstream/pkg/com"
	"github.com/camstream/camstream/pkg/pipeline"
)

// binding ties a camera to its pipeline adapter.
type binding struct {
	cameraId string
	adapter  pipeline.Adapter

	mu      sync.Mutex
	started bool
}

// start starts the adapter once.
func (b *binding) start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := b.adapter.Start(); err != nil {
		return err
	}
	b.started = true
	return nil
}

func (b *binding) stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	return b.adapter.Stop()
}

// Bindings holds at most one adapter per camera.
type Bindings struct {
	m *com.Map[string, *binding]
}

func NewBindings() *Bindings { return &Bindings{m: com.NewMap[string, *binding]()} }

// bind keeps the first binding of a camera, false means the camera was bound already.
func (b *Bindings) bind(cameraId string, adapter pipeline.Adapter) (*binding, bool) {
	return b.m.PutIfAbsent(cameraId, &binding{cameraId: cameraId, adapter: adapter})
}

func (b *Bindings) get(cameraId string) *binding {
	v, err := b.m.Find(cameraId)
	if err != nil {
		return nil
	}
	return v
}

func (b *Bindings) unbind(cameraId string) *binding {
	v, _ := b.m.Pop(cameraId)
	return v
}

func (b *Bindings) Has(cameraId string) bool { return b.m.Has(cameraId) }
func (b *Bindings) Cameras() []string        { return b.m.Keys() }
func (b *Bindings) Len() int                 { return b.m.Len() }
