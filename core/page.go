package core

// Page is the transport to a live UI surface.
//
// Implementations must deliver Run and Eval scripts in the order they are
// issued and must not block the caller.
type Page interface {
	// Loaded reports whether a surface is attached and able to run scripts.
	Loaded() bool
	// Run executes script without waiting for completion.
	Run(script string)
	// Eval executes script and calls done at most once with its result.
	// done may never be called if the surface goes away.
	Eval(script string, done func(value any))
}

// Receiver is the inbound side of the bridge that transports call into.
type Receiver interface {
	LogMessage(level, text string)
	PageReady()
	Invoke(method string, args []any) any
}
