// Package zap routes queue diagnostics to a zap logger.
package zap

import (
	"github.com/unkn0wn-root/refillq"
	"go.uber.org/zap"
)

// ZapLogger adapts *zap.Logger to the refillq logging seam. Fields map to
// zap.Any, so they cost an allocation per field; keep the queue's logger at
// a level where Debug noise (per-push capacity messages) is filtered out.
type ZapLogger struct{ L *zap.Logger }

var _ refillq.Logger = ZapLogger{}

func (z ZapLogger) Debug(msg string, f refillq.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f refillq.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f refillq.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f refillq.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f refillq.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
