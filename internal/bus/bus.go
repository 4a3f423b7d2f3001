package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(evt Event)
}

// DeliveryObserver is notified for every event handed to a subscriber.
type DeliveryObserver interface {
	ObserveBusDelivery(kind string)
}

// Bus fans events out to every subscriber in publish order. Each
// subscriber owns an unbounded queue so a slow reader never stalls the
// publisher or its peers.
type Bus struct {
	mu         sync.Mutex
	subs       map[int]*subscriber
	nextID     int
	closed     bool
	logger     *zap.Logger
	deliveries DeliveryObserver
}

type subscriber struct {
	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
	done  chan struct{}
	out   chan Event
	once  sync.Once
}

func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[int]*subscriber),
		logger: logger,
	}
}

// SetDeliveryObserver installs an optional delivery counter.
func (b *Bus) SetDeliveryObserver(o DeliveryObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveries = o
}

// Subscribe registers a new subscriber. The returned channel is closed
// after cancel is called or the bus is closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan Event),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	obs := b.deliveries
	b.mu.Unlock()

	go s.pump(obs)

	return s.out, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.stop()
	}
}

// Publish enqueues evt for every current subscriber. It never blocks on
// a reader.
func (b *Bus) Publish(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		s.enqueue(evt)
	}
	b.logger.Debug("bus event published", zap.String("kind", Kind(evt)), zap.Int("subscribers", len(b.subs)))
}

// Close stops every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (s *subscriber) enqueue(evt Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) pump(obs DeliveryObserver) {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		evt := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- evt:
			if obs != nil {
				obs.ObserveBusDelivery(Kind(evt))
			}
		case <-s.done:
			return
		}
	}
}
