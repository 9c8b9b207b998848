package editor

import (
	"context"
	"log/slog"
	"time"
)

// Event frame types pushed to session subscribers.
const (
	EventPreview = "preview"
	EventNotice  = "notice"
	EventState   = "state"
)

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is a frame delivered to session subscribers. Type selects which of
// the optional fields are set.
type Event struct {
	Timestamp time.Time  `json:"timestamp"`
	Type      string     `json:"type"`
	Seq       uint64     `json:"seq,omitempty"`
	HTML      string     `json:"html,omitempty"`
	Level     string     `json:"level,omitempty"`
	Message   string     `json:"message,omitempty"`
	State     *StateView `json:"state,omitempty"`
}

type subscriber struct {
	ctx context.Context
	ch  chan Event
}

// Subscribe registers for session events. The returned channel closes when
// ctx is done or the controller shuts down.
func (c *Controller) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 8)
	id := c.subCounter.Add(1)

	c.subsMu.Lock()
	c.subscribers[id] = &subscriber{ctx: ctx, ch: ch}
	c.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.ctx.Done():
		}

		c.subsMu.Lock()
		if sub, ok := c.subscribers[id]; ok {
			close(sub.ch)
			delete(c.subscribers, id)
		}
		c.subsMu.Unlock()
	}()

	return ch
}

func (c *Controller) broadcast(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	c.subsMu.RLock()
	var stale []uint64
	for id, sub := range c.subscribers {
		select {
		case <-sub.ctx.Done():
			stale = append(stale, id)
		case <-c.ctx.Done():
			stale = append(stale, id)
		case sub.ch <- evt:
		default:
			// drop frame when subscriber lags
		}
	}
	c.subsMu.RUnlock()

	for _, id := range stale {
		c.removeSubscriber(id)
	}
}

func (c *Controller) removeSubscriber(id uint64) {
	c.subsMu.Lock()
	if sub, ok := c.subscribers[id]; ok {
		close(sub.ch)
		delete(c.subscribers, id)
	}
	c.subsMu.Unlock()
}

// notify pushes a transient user notice and logs it at a matching level.
func (c *Controller) notify(level, message string) {
	switch level {
	case LevelError:
		c.logger.Error("notice", slog.String("message", message))
	case LevelWarning:
		c.logger.Warn("notice", slog.String("message", message))
	default:
		c.logger.Info("notice", slog.String("message", message))
	}
	c.broadcast(Event{Type: EventNotice, Level: level, Message: message})
}
