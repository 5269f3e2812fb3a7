package types

// Handle is a cancellable in-flight network operation
type Handle interface {
	// Cancel asks the transport to abandon the work. It may be called more
	// than once.
	Cancel()
}

// HandleFunc adapts a function to a Handle
type HandleFunc func()

// Cancel calls f
func (f HandleFunc) Cancel() {
	if f != nil {
		f()
	}
}
