package transit

import (
	"context"
	"log/slog"

	"github.com/templui/transit/internal/file"
	"github.com/templui/transit/internal/metrics"
	"github.com/templui/transit/internal/transport"
)

type undo struct {
	what string
	run  func(ctx context.Context) error
}

// journal is the append-only list of undo actions for one run. Rollback
// executes them newest first and keeps going past failures.
type journal struct {
	field   string
	actions []undo
}

// addFile records a local file created or moved during the run. The pointer is
// kept so deletion follows later renames.
func (j *journal) addFile(f *file.File) {
	j.actions = append(j.actions, undo{
		what: "file",
		run: func(context.Context) error {
			return f.Delete()
		},
	})
}

func (j *journal) addRemote(class transport.Kind, t transport.Transporter, ref string) {
	j.actions = append(j.actions, undo{
		what: "remote:" + string(class),
		run: func(ctx context.Context) error {
			return t.Delete(ctx, ref)
		},
	})
}

// rollback runs every action in reverse and returns the number that failed.
func (j *journal) rollback(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)

	failed := 0
	for i := len(j.actions) - 1; i >= 0; i-- {
		a := j.actions[i]
		if err := a.run(ctx); err != nil {
			failed++
			metrics.RollbackFailures.Inc()
			slog.Error("rollback step failed", "field", j.field, "action", a.what, "error", err)
		}
	}
	j.actions = nil
	return failed
}
