package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that returns an error to a looplab callback.
// A returned error cancels the event; in before_ and leave_ callbacks this
// aborts the transition.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// IgnoreNoTransition drops the error looplab returns when an event leaves
// the machine in the state it was already in.
func IgnoreNoTransition(err error) error {
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}
	return err
}
