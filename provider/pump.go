package provider

import (
	"context"
	"errors"
	"io"

	"inlinecomplete/logger"
	"inlinecomplete/stream"
	"inlinecomplete/types"
)

// pumpBuffer is how many snapshots a branch may read ahead of its consumer
const pumpBuffer = 16

// EventError is the event name of a terminal protocol failure frame
const EventError = "error"

// Pump reads the event stream in body on its own goroutine and turns it
// into cumulative snapshots. The last snapshot is request-finished, or
// request-aborted when ctx is cancelled first. Errors raised after
// cancellation are dropped. body is closed when the pump stops.
func Pump(ctx context.Context, body io.ReadCloser, aggregate bool, decode Decoder) stream.Stream[types.PartialCompletion] {
	ch := make(chan stream.Item[types.PartialCompletion], pumpBuffer)
	go pump(ctx, body, aggregate, decode, ch)
	return &pumped{branch: ctx, ch: ch}
}

func pump(ctx context.Context, body io.ReadCloser, aggregate bool, decode Decoder, ch chan<- stream.Item[types.PartialCompletion]) {
	defer close(ch)
	defer body.Close()

	send := func(item stream.Item[types.PartialCompletion]) bool {
		select {
		case ch <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}
	snapshot := func(completion string, reason types.StopReason) bool {
		return send(stream.Item[types.PartialCompletion]{
			Value: types.PartialCompletion{Completion: completion, StopReason: reason},
		})
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			logger.Debug("pump: dropping error after abort: %v", err)
			return
		}
		send(stream.Item[types.PartialCompletion]{Err: err})
	}

	msgs := stream.Reader(body, aggregate)
	completion := ""
	for {
		msg, err := msgs.Next(ctx)
		if errors.Is(err, stream.Done) {
			snapshot(completion, types.StopReasonRequestFinished)
			return
		}
		if err != nil {
			fail(&types.ProtocolError{Message: "failed to read stream", Err: err})
			return
		}

		if msg.Data == stream.DoneData {
			snapshot(completion, types.StopReasonRequestFinished)
			return
		}
		if msg.Event == EventError {
			fail(&types.ProtocolError{Message: msg.Data})
			return
		}

		next, done, err := decode(msg, completion)
		if err != nil {
			fail(err)
			return
		}
		if done {
			snapshot(next, types.StopReasonRequestFinished)
			return
		}
		if next != completion {
			completion = next
			if !snapshot(completion, types.StopReasonStreamingChunk) {
				return
			}
		}
	}
}

// pumped is the consumer side of a pump. Once the branch is cancelled it
// reports the last text it saw as request-aborted.
type pumped struct {
	branch context.Context
	ch     <-chan stream.Item[types.PartialCompletion]
	last   types.PartialCompletion
	done   bool
}

func (p *pumped) Next(ctx context.Context) (types.PartialCompletion, error) {
	if p.done {
		return types.PartialCompletion{}, stream.Done
	}

	select {
	case item, ok := <-p.ch:
		if !ok {
			p.done = true
			if p.branch.Err() != nil {
				return p.aborted(), nil
			}
			return types.PartialCompletion{}, stream.Done
		}
		if item.Err != nil {
			p.done = true
			return types.PartialCompletion{}, item.Err
		}
		p.last = item.Value
		p.done = p.last.Finished()
		return p.last, nil
	case <-ctx.Done():
		p.done = true
		return p.aborted(), nil
	}
}

func (p *pumped) aborted() types.PartialCompletion {
	return types.PartialCompletion{Completion: p.last.Completion, StopReason: types.StopReasonRequestAborted}
}
