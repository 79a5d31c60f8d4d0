package tasks

import (
	"context"
)

// Pending is the handle for a workflow running in the background.
type Pending struct {
	done   chan struct{}
	result WorkflowResult
}

// Done is closed when the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the workflow finishes or ctx is done. Cancelling ctx
// stops the wait, not the workflow.
func (p *Pending) Wait(ctx context.Context) (WorkflowResult, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return WorkflowResult{}, ctx.Err()
	}
}

// Submit starts RunWorkflow on its own goroutine and returns immediately.
// The run keeps ctx's values but not its cancellation.
func (o *Orchestrator) Submit(ctx context.Context, kind Kind, requester Requester, alias string) *Pending {
	p := &Pending{done: make(chan struct{})}
	runCtx := context.WithoutCancel(ctx)

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer close(p.done)
		p.result = o.RunWorkflow(runCtx, kind, requester, alias)
	}()
	return p
}

// Drain waits for submitted workflows to finish, or for ctx to be done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
