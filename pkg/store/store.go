// Package store defines the interface the reconciliation engine uses to
// read the current set of registered multicloud stacks. The engine
// treats the backing store as an external collaborator: it only ever
// calls List, and rereads from scratch every tick rather than relying
// on any snapshot isolation.
package store

import (
	"context"

	"github.com/acticloud/heatspreader/pkg/types"
)

// StackStore returns the full current set of registered stacks. Ordering
// across calls is stable but otherwise unspecified.
type StackStore interface {
	List(ctx context.Context) ([]*types.MulticloudStack, error)
}

// WriteStore is the superset of StackStore used by the REST and CLI
// surfaces to manage stacks. The reconciliation engine never depends on
// this interface, only on StackStore.
type WriteStore interface {
	StackStore

	Get(ctx context.Context, stackName string) (*types.MulticloudStack, error)
	Create(ctx context.Context, stack *types.MulticloudStack) error
	Update(ctx context.Context, stack *types.MulticloudStack) error
	Delete(ctx context.Context, stackName string) error
	SetWeight(ctx context.Context, stackName, cloudName string, weight float64) error
	RemoveWeight(ctx context.Context, stackName, cloudName string) error
	Close() error
}

// ErrNotFound is returned by Get/Update/Delete/weight operations when
// the named stack does not exist.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "stack not found" }
