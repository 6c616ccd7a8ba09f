// internal/eventbus/bus.go
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// DefaultEmitTimeout bounds how long a Sink blocks on a slow subscriber
// before the event is dropped.
const DefaultEmitTimeout = 2 * time.Second

// Message is the envelope delivered to subscribers.
type Message struct {
	ID        string
	Timestamp time.Time
	Event     refinement.Event
}

// Bus fans refinement events out to subscribers. Every delivered message must
// be acknowledged so Shutdown can wait for in-flight processing.
type Bus struct {
	logger *zap.Logger

	// Subscribers keyed by event kind. The empty kind receives everything.
	subscribers map[refinement.EventKind][]chan Message
	mu          sync.RWMutex
	bufferSize  int

	processingWg  sync.WaitGroup
	activePostsWg sync.WaitGroup

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	isShutdown   bool
	shutdownMu   sync.Mutex
}

// New initializes a Bus. Subscriber channels are created with bufferSize slots.
func New(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		logger:       logger.Named("event_bus"),
		subscribers:  make(map[refinement.EventKind][]chan Message),
		bufferSize:   bufferSize,
		shutdownChan: make(chan struct{}),
	}
}

// Post delivers an event to every interested subscriber. It blocks while a
// subscriber's buffer is full, until ctx is done or the bus shuts down.
func (b *Bus) Post(ctx context.Context, event refinement.Event) error {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return fmt.Errorf("cannot post event: bus is shut down")
	}
	b.activePostsWg.Add(1)
	b.shutdownMu.Unlock()
	defer b.activePostsWg.Done()

	msg := Message{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Event: event}

	b.mu.RLock()
	targets := make([]chan Message, 0, len(b.subscribers[event.Kind])+len(b.subscribers[""]))
	targets = append(targets, b.subscribers[event.Kind]...)
	targets = append(targets, b.subscribers[""]...)
	b.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}
	b.logger.Debug("Posting event", zap.String("kind", string(event.Kind)), zap.String("id", msg.ID))

	for _, ch := range targets {
		b.processingWg.Add(1)
		select {
		case ch <- msg:
		case <-ctx.Done():
			b.processingWg.Done()
			return ctx.Err()
		case <-b.shutdownChan:
			b.processingWg.Done()
			return fmt.Errorf("failed to post event: bus is shutting down")
		}
	}
	return nil
}

// Subscribe returns a channel receiving the given kinds, or every event when
// no kind is given, plus a function that removes the subscription.
func (b *Bus) Subscribe(kinds ...refinement.EventKind) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdownLocked() {
		closed := make(chan Message)
		close(closed)
		return closed, func() {}
	}

	if len(kinds) == 0 {
		kinds = []refinement.EventKind{""}
	}
	ch := make(chan Message, b.bufferSize)
	subscribed := append([]refinement.EventKind(nil), kinds...)
	for _, k := range subscribed {
		b.subscribers[k] = append(b.subscribers[k], ch)
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, k := range subscribed {
			subs := b.subscribers[k]
			for i, c := range subs {
				if c == ch {
					b.subscribers[k] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subscribers[k]) == 0 {
				delete(b.subscribers, k)
			}
		}
		// The channel is closed by Shutdown, never here.
	}
	return ch, unsubscribe
}

func (b *Bus) isShutdownLocked() bool {
	b.shutdownMu.Lock()
	defer b.shutdownMu.Unlock()
	return b.isShutdown
}

// Acknowledge marks a delivered message as processed.
func (b *Bus) Acknowledge(Message) {
	b.processingWg.Done()
}

// Shutdown stops accepting events, closes subscriber channels and waits for
// acknowledged processing to finish.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.shutdownMu.Lock()
		b.isShutdown = true
		b.shutdownMu.Unlock()

		close(b.shutdownChan)
		b.activePostsWg.Wait()

		b.mu.Lock()
		unique := make(map[chan Message]struct{})
		for _, subs := range b.subscribers {
			for _, ch := range subs {
				unique[ch] = struct{}{}
			}
		}
		for ch := range unique {
			close(ch)
		}
		// Messages still buffered were counted as delivered; release them.
		drained := 0
		for ch := range unique {
			for range ch {
				drained++
				b.processingWg.Done()
			}
		}
		b.subscribers = make(map[refinement.EventKind][]chan Message)
		b.mu.Unlock()

		if drained > 0 {
			b.logger.Debug("Drained buffered events during shutdown.", zap.Int("count", drained))
		}
		b.processingWg.Wait()
		b.logger.Debug("Event bus shut down.")
	})
}

// Sink adapts the bus to refinement.EventSink. Emit never blocks longer than
// timeout; events that cannot be delivered in time are dropped and logged.
func (b *Bus) Sink(timeout time.Duration) refinement.EventSink {
	if timeout <= 0 {
		timeout = DefaultEmitTimeout
	}
	return refinement.SinkFunc(func(e refinement.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := b.Post(ctx, e); err != nil {
			b.logger.Warn("Dropped status event.", zap.String("kind", string(e.Kind)), zap.String("run_id", e.RunID), zap.Error(err))
		}
	})
}
