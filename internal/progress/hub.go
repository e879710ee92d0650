package progress

import (
	"sync"

	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
)

const defaultSubscriberBuffer = 16

// Hub fans progress events out to any number of subscribers. Delivery is
// non-blocking: a subscriber whose buffer is full misses events instead of
// stalling the queue loop.
type Hub struct {
	log    *zap.Logger
	mu     sync.RWMutex
	subs   map[chan schemas.ProgressEvent]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		log:  logger.Named("progress_hub"),
		subs: make(map[chan schemas.ProgressEvent]struct{}),
	}
}

// Subscribe registers a listener with the given buffer size (non-positive
// means the default). The returned channel closes when cancel is called or
// the hub shuts down; cancel is idempotent.
func (h *Hub) Subscribe(buffer int) (<-chan schemas.ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan schemas.ProgressEvent, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.closed {
				// Close already tore the channel down.
				return
			}
			delete(h.subs, ch)
			close(ch)
		})
	}
	return ch, cancel
}

// Post implements Sink. Events for full subscriber buffers are dropped.
func (h *Hub) Post(ev schemas.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Debug("Dropping progress event for slow subscriber.",
				zap.String("phase", string(ev.Phase)),
				zap.Int("index", ev.Index))
		}
	}
}

// Close terminates every subscription. Posting afterwards is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
