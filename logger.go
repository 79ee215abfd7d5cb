package refillq

// Fields is a minimal structured field map for queue and dictionary
// diagnostics (queue name, worker id, key counts).
type Fields map[string]any

// Logger is the leveled logging seam of the queue. Adapters for common
// stacks live under log/; pass one via WithLogger. With no logger configured
// the queue is silent.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
