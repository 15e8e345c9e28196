package concurrency

// AutoResetEvent is a level-triggered notification primitive.
// Set() makes the event signaled; receiving from WaitChannel() consumes the signal.
// Multiple Set() calls while the event is signaled coalesce into one notification.
type AutoResetEvent struct {
	channel chan struct{}
}

func NewAutoResetEvent(initialState bool) *AutoResetEvent {
	retval := &AutoResetEvent{
		channel: make(chan struct{}, 1),
	}
	if initialState {
		retval.Set()
	}
	return retval
}

func (e *AutoResetEvent) WaitChannel() <-chan struct{} {
	return e.channel
}

func (e *AutoResetEvent) Set() {
	// Non-blocking for caller
	select {
	case e.channel <- struct{}{}:
	default:
	}
}

func (e *AutoResetEvent) Clear() {
	// Non-blocking for caller
	select {
	case <-e.channel:
	default:
	}
}
