package detector

import "context"

// Detector is a strategy that determines whether the server is up.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the server is detected as ready. A false result with a
	// nil error means the server answered but is not healthy.
	Alive(ctx context.Context) (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context) (bool, error)

func (f Func) Alive(ctx context.Context) (bool, error) { return f(ctx) }

func (f Func) Describe() string { return "func" }
