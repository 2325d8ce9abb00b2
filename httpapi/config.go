package httpapi

// Config defines HTTP surface settings.
type Config struct {
	Addr string
	// BaseURL and BasePath build the <base href> of the bundled surface.
	BaseURL  string
	BasePath string
	// UIDir serves an external UI surface instead of the bundled demo.
	UIDir string
	// StreamHistory bounds events kept for Last-Event-ID replay.
	StreamHistory int
}
