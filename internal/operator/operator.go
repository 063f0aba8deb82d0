// Package operator binds declared operators to live capabilities: chat
// models (BOT, HYDRA), nested graphs (SYNOD), plain callables (BASIC) and
// the supervisor control plane (ARGUS).
package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/observability"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
)

var (
	ErrUnknownOperator     = errors.New("unknown operator")
	ErrUnsupportedKind     = errors.New("unsupported operator kind")
	ErrUnknownHandler      = errors.New("unknown handler")
	ErrDuplicateAlias      = errors.New("duplicate operator alias")
	ErrFrozen              = errors.New("registry is frozen")
	ErrMissingCollaborator = errors.New("missing collaborator")
	ErrNotStreamable       = errors.New("operator does not stream")
)

// Call is one dispatch of an operator.
type Call struct {
	Handler      string
	Input        any
	Instructions string
	Timeout      time.Duration

	// Board is the shared blackboard, visible to BASIC methods.
	Board blackboard.Blackboard
}

// Operator is a bound capability of one of the closed set of kinds.
type Operator interface {
	Alias() string
	Kind() graph.OperatorKind

	// Decl returns the declaration the operator was built from.
	Decl() graph.OperatorDecl

	Dispatch(ctx context.Context, call Call) (any, error)
}

// Streamable operators forward response chunks to a callback.
type Streamable interface {
	SetStreamer(fn func(chunk string))
}

// Run dispatches call to op under call.Timeout. It is the single entry point
// used for local calls and by remote workers.
func Run(ctx context.Context, op Operator, call Call) (any, error) {
	switch o := op.(type) {
	case *Bot:
		return RunBot(ctx, o, call)
	case *Hydra:
		return RunHydra(ctx, o, call)
	case *Synod:
		return RunSynod(ctx, o, call)
	case *Basic:
		return RunBasic(ctx, o, call)
	case *Argus:
		return RunArgus(ctx, o, call)
	}
	if !op.Kind().Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, op.Kind())
	}
	return run(ctx, op, call)
}

func RunBot(ctx context.Context, op *Bot, call Call) (any, error)     { return run(ctx, op, call) }
func RunHydra(ctx context.Context, op *Hydra, call Call) (any, error) { return run(ctx, op, call) }
func RunSynod(ctx context.Context, op *Synod, call Call) (any, error) { return run(ctx, op, call) }
func RunBasic(ctx context.Context, op *Basic, call Call) (any, error) { return run(ctx, op, call) }
func RunArgus(ctx context.Context, op *Argus, call Call) (any, error) { return run(ctx, op, call) }

// TaskName is the remote task name for kind, e.g. "run_bot".
func TaskName(kind graph.OperatorKind) string {
	return "run_" + string(kind)
}

func run(ctx context.Context, op Operator, call Call) (out any, err error) {
	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "synode.dispatch", map[string]any{
		"operator": op.Alias(),
		"kind":     string(op.Kind()),
		"handler":  call.Handler,
	})
	start := time.Now()
	defer func() {
		metrics.RecordOperatorCall(string(op.Kind()), op.Alias(), err, time.Since(start))
		span.End(err)
	}()

	return op.Dispatch(ctx, call)
}
