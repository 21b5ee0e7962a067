package authenticator

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Exclusive serializes retrievals. The authenticator window and the system
// clipboard are shared by the whole desktop session, so two overlapping runs
// would read each other's codes.
type Exclusive struct {
	next Retriever
	sem  *semaphore.Weighted
}

func NewExclusive(next Retriever) *Exclusive {
	return &Exclusive{next: next, sem: semaphore.NewWeighted(1)}
}

func (e *Exclusive) Retrieve(ctx context.Context) (string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire authenticator: %w", err)
	}
	defer e.sem.Release(1)
	return e.next.Retrieve(ctx)
}
