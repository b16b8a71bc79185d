package process

// Relay drains events in a new goroutine until the channel is closed,
// passing every line to handler. The returned channel is closed when the
// worker's output has ended.
//
// Relay never applies a deadline and never interprets the output. It must
// only be started after any previous consumer (the Probe) has returned.
func Relay(events <-chan OutputEvent, handler OutputHandler) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if handler != nil {
				handler.HandleLine(ev)
			}
		}
	}()
	return done
}
