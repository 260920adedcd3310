package llm

import (
	"context"
	"io"
)

// channelStream adapts a producer goroutine into the pull-based Stream
// interface. The producer runs ahead at most by the channel buffer; the
// consumer drives everything else, so cancellation is simply Close.
type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan Event
}

func newEventStream(ctx context.Context, run func(context.Context, chan<- Event) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		if err := run(streamCtx, ch); err != nil {
			ch <- Event{Type: EventError, Err: err}
		}
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, events: ch}
}

func (s *channelStream) Recv() (Event, error) {
	// Cancellation wins over buffered events: once the stream is closed or
	// its context cancelled, no further elements are yielded even when the
	// producer ran ahead of the consumer.
	select {
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	default:
	}

	select {
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	case event, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return event, nil
	}
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}
