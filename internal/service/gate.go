package service

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// Gate decides whether this process should execute distribution ticks.
// It is coarse by design: every engine side effect is safe to repeat,
// so brief double execution across a leadership handover is tolerated.
type Gate interface {
	ShouldRun(ctx context.Context) (bool, error)
}

// EnvGate reads a boolean environment variable on every tick, so the
// flag can be flipped in shared deployment config without a restart.
// An unset or unparsable value means enabled; an unparsable value is
// reported once so a typo in shared config does not fail open silently.
type EnvGate struct {
	Var string

	warnOnce sync.Once
}

// ShouldRun implements Gate.
func (g *EnvGate) ShouldRun(_ context.Context) (bool, error) {
	raw := os.Getenv(g.Var)
	if raw == "" {
		return true, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		g.warnOnce.Do(func() {
			slog.Warn("unparsable gate value, distribution stays enabled",
				"var", g.Var,
				"value", raw,
			)
		})
		return true, nil
	}
	return enabled, nil
}
