package engine

import (
	"sync"
)

// Event categories.
const (
	CategoryAbsorbed  = "absorbed"
	CategoryCrossed   = "crossed"
	CategoryFaded     = "faded"
	CategoryDestroyed = "destroyed"
	CategoryCooldown  = "cooldown"
	CategoryReset     = "reset"
	CategorySession   = "session"
)

// maxEvents bounds the in-memory event history.
const maxEvents = 512

// subscriberBuffer is the channel depth per subscriber. Slow readers drop
// events rather than stall the tick loop.
const subscriberBuffer = 64

// Event is a notable occurrence in the simulation.
type Event struct {
	Tick        uint64 `json:"tick"`
	Cycle       uint64 `json:"cycle"`
	Description string `json:"description"`
	Category    string `json:"category"` // "absorbed", "faded", "reset", "session", etc.
}

// eventLog is a bounded event history with fan-out to subscribers.
// It is the only simulation state shared with reader goroutines besides the
// published frame, so it carries its own lock.
type eventLog struct {
	mu      sync.Mutex
	events  []Event
	unsaved []Event
	subs    map[int]chan Event
	nextSub int
}

func newEventLog() *eventLog {
	return &eventLog{subs: make(map[int]chan Event)}
}

func (l *eventLog) emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if len(l.events) > maxEvents {
		copy(l.events, l.events[len(l.events)-maxEvents:])
		l.events = l.events[:maxEvents]
	}
	l.unsaved = append(l.unsaved, e)
	if len(l.unsaved) > maxEvents {
		l.unsaved = l.unsaved[len(l.unsaved)-maxEvents:]
	}

	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (l *eventLog) recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

func (l *eventLog) drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.unsaved
	l.unsaved = nil
	return out
}

// requeue puts drained events back ahead of anything emitted since.
func (l *eventLog) requeue(events []Event) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsaved = append(append([]Event(nil), events...), l.unsaved...)
	if len(l.unsaved) > maxEvents {
		l.unsaved = l.unsaved[len(l.unsaved)-maxEvents:]
	}
}

func (l *eventLog) subscribe() (int, <-chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSub++
	ch := make(chan Event, subscriberBuffer)
	l.subs[l.nextSub] = ch
	return l.nextSub, ch
}

func (l *eventLog) unsubscribe(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.subs[id]; ok {
		delete(l.subs, id)
		close(ch)
	}
}

// EmitEvent records an event and forwards it to every subscriber.
func (s *Simulation) EmitEvent(e Event) {
	if e.Cycle == 0 {
		e.Cycle = s.Cycle
	}
	s.events.emit(e)
}

// RecentEvents returns up to n of the newest events, oldest first.
// n <= 0 returns the whole history.
func (s *Simulation) RecentEvents(n int) []Event {
	return s.events.recent(n)
}

// DrainEvents returns the events emitted since the previous call, for
// persistence.
func (s *Simulation) DrainEvents() []Event {
	return s.events.drain()
}

// RequeueEvents returns events from a failed DrainEvents flush so the next
// drain includes them again.
func (s *Simulation) RequeueEvents(events []Event) {
	s.events.requeue(events)
}

// Subscribe registers a live event feed. The channel is closed by Unsubscribe.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	return s.events.subscribe()
}

// Unsubscribe removes a feed registered with Subscribe.
func (s *Simulation) Unsubscribe(id int) {
	s.events.unsubscribe(id)
}
