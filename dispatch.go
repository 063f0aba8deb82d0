package synode

import (
	"context"
	"fmt"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/operator"
	"github.com/aixgo-dev/synode/internal/remote"
)

// dispatch resolves the agent's operator reference and instructions and
// calls the operator, locally or through the remote dispatcher.
func (r *run) dispatch(ctx context.Context, a *graph.AgentDecl, input any) (any, error) {
	ref := a.Operator
	if graph.IsExpression(ref) {
		v, err := r.e.eval.EvalString(ctx, ref, r.private)
		if err != nil {
			return nil, fmt.Errorf("resolve operator %q: %w", ref, err)
		}
		ref = v
	}
	alias, handler := graph.SplitOperator(ref)
	op, err := r.e.ops.Lookup(alias)
	if err != nil {
		return nil, err
	}

	instructions, err := r.e.eval.EvalString(ctx, a.Instructions, r.private)
	if err != nil {
		return nil, fmt.Errorf("resolve instructions: %w", err)
	}

	call := operator.Call{
		Handler:      handler,
		Input:        input,
		Instructions: instructions,
		Timeout:      a.TimeoutDuration(),
		Board:        r.e.board,
	}
	// ARGUS drives a supervisor that lives in this process.
	if !r.e.def.AgentRunsAsync(a) || op.Kind() == graph.KindArgus {
		return operator.Run(ctx, op, call)
	}

	if r.e.dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	task := remote.NewTask(op.Decl(), *a, call)
	if op.Kind() == graph.KindBasic {
		snap, err := r.e.board.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot blackboard: %w", err)
		}
		task.Board = snap
	}
	return r.e.dispatcher.Dispatch(ctx, task)
}
