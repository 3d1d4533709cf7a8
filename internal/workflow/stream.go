package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Stream runs the remaining steps and the summary of workflow id, emitting
// progress events on the returned channel. The channel is closed after the
// terminal complete or error event, or when ctx ends. Steps that already
// ran are replayed from their stored records.
func (o *Orchestrator) Stream(ctx context.Context, id string) (<-chan Event, error) {
	st, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		defer func() {
			if p := recover(); p != nil {
				o.logger.Error("workflow stream panicked",
					zap.String("workflow_id", id), zap.Any("panic", p), zap.Stack("stack"))
				o.abort(ctx, ch, id, fmt.Errorf("internal error: %v", p))
			}
		}()
		if err := o.stream(ctx, st, ch); err != nil {
			if ctx.Err() != nil {
				o.logger.Info("workflow stream detached", zap.String("workflow_id", id))
				return
			}
			o.abort(ctx, ch, id, err)
		}
	}()
	return ch, nil
}

// abort records err on the workflow and emits the terminal error event.
func (o *Orchestrator) abort(ctx context.Context, ch chan<- Event, id string, err error) {
	o.markFailed(id, err.Error())
	o.emit(ctx, ch, Event{Type: EventError, WorkflowID: id, Message: err.Error()})
}

func (o *Orchestrator) stream(ctx context.Context, st *State, ch chan<- Event) error {
	id := st.ID
	// a detached client stops the event flow, not a running step
	run := context.WithoutCancel(ctx)
	if st.Status == StatusError {
		if st.Error == "" {
			return ErrWorkflowTerminal
		}
		return errors.New(st.Error)
	}
	if !o.emit(ctx, ch, Event{Type: EventSubtasks, WorkflowID: id, Subtasks: st.Subtasks}) {
		return ctx.Err()
	}

	for i := range st.Subtasks {
		replay := i < st.Progress
		rec, err := o.Step(run, id, i)
		if err != nil {
			return err
		}
		if !o.emit(ctx, ch, Event{Type: EventSubtaskComplete, WorkflowID: id, Index: &i, Result: &rec}) {
			return ctx.Err()
		}
		if !replay && o.cfg.StepDelay > 0 {
			if err := sleep(ctx, o.cfg.StepDelay); err != nil {
				return err
			}
		}
	}

	summary, err := o.Summarize(run, id)
	if err != nil {
		return err
	}
	if !o.emit(ctx, ch, Event{Type: EventSummary, WorkflowID: id, Text: summary}) {
		return ctx.Err()
	}

	final, err := o.Result(id)
	if err != nil {
		return err
	}
	o.emit(ctx, ch, Event{Type: EventComplete, WorkflowID: id, Answer: &final})
	return nil
}

// emit delivers ev to the channel and the publisher. It reports false when
// ctx ended before the consumer took the event.
func (o *Orchestrator) emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	ev.Time = o.now()
	if o.publisher != nil {
		if err := o.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
			o.logger.Warn("publish workflow event",
				zap.String("workflow_id", ev.WorkflowID), zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
