package orchestrator

import (
	"context"

	"github.com/tuannvm/workitem-qa/internal/models"
)

const streamBuffer = 32

// ProcessStream answers req as a stream of events. The channel carries zero
// or more token events, optional tool_use and verifying/correction events,
// and exactly one terminal done or error event before it is closed.
// Cancelling ctx stops the producer.
func (p *Pipeline) ProcessStream(ctx context.Context, req Request) <-chan models.Event {
	ch := make(chan models.Event, streamBuffer)
	go func() {
		defer close(ch)
		out := &emitter{ctx: ctx, ch: ch}
		resp, err := p.run(ctx, req, out)
		final := models.Event{Type: models.EventDone, Response: &resp}
		if err != nil {
			final = models.Event{Type: models.EventError, Error: resp.Error, Response: &resp}
		}
		out.final(final)
	}()
	return ch
}

// emitter is the producer side of a stream. A nil emitter drops everything.
type emitter struct {
	ctx context.Context
	ch  chan<- models.Event
}

func (e *emitter) send(ev models.Event) error {
	if e == nil {
		return nil
	}
	select {
	case e.ch <- ev:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// final prefers buffer space over cancellation so a listening consumer
// still sees the terminal event.
func (e *emitter) final(ev models.Event) {
	select {
	case e.ch <- ev:
	default:
		_ = e.send(ev)
	}
}

func (e *emitter) token(text string) error {
	if text == "" {
		return nil
	}
	return e.send(models.Event{Type: models.EventToken, Text: text})
}
