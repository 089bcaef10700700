package transport

// lifecycleState is the shared Init/Starting/Processing/Closing/Closed
// enum the spec assigns to both Connection and Acceptor. Not every value
// is meaningful for both: a Connection never visits Starting, and an
// Acceptor never visits Closing (it goes straight from Processing to
// Stopped, since it has no write queue to drain).
type lifecycleState int32

const (
	stateInit lifecycleState = iota
	stateStarting
	stateProcessing
	stateClosing
	stateClosed
	stateStopped
)
