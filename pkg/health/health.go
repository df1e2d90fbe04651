// Package health tracks the liveness of each configured cloud and of
// each multicloud stack on that cloud, and answers the single question
// the planner and reconciler need: is this stack available on this
// cloud right now.
package health

import (
	"sync"

	"github.com/acticloud/heatspreader/pkg/log"
)

// CloudStatus is the health of a cloud connection, independent of any
// particular stack.
type CloudStatus int

const (
	CloudNotChecked CloudStatus = iota
	CloudHealthy
	CloudUnreachable
)

func (s CloudStatus) String() string {
	switch s {
	case CloudHealthy:
		return "healthy"
	case CloudUnreachable:
		return "unreachable"
	default:
		return "not_checked"
	}
}

// StackStatus is the health of one stack on one cloud.
type StackStatus int

const (
	StackNotChecked StackStatus = iota
	StackHealthy
	StackNotFound
	StackMissingCountParameter
)

func (s StackStatus) String() string {
	switch s {
	case StackHealthy:
		return "healthy"
	case StackNotFound:
		return "not_found"
	case StackMissingCountParameter:
		return "missing_count_parameter"
	default:
		return "not_checked"
	}
}

type stackKey struct {
	cloud string
	stack string
}

// Registry holds the current health of every cloud and every
// (cloud, stack) pair ever observed. Entries are created lazily on
// first observation and are never removed for the life of the process.
// The registry is safe for concurrent use: the scheduler's tick goroutine
// is the only writer, but readers (the REST server, an admin endpoint)
// may call in from elsewhere.
type Registry struct {
	mu     sync.RWMutex
	clouds map[string]CloudStatus
	stacks map[stackKey]StackStatus
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		clouds: make(map[string]CloudStatus),
		stacks: make(map[stackKey]StackStatus),
	}
}

// Cloud reads (and optionally upserts) the status of a cloud. Passing a
// nil newStatus only reads the current value, creating a NotChecked
// entry if none exists yet.
func (r *Registry) Cloud(cloudName string, newStatus *CloudStatus) CloudStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.clouds[cloudName]
	if !ok {
		current = CloudNotChecked
		r.clouds[cloudName] = current
	}

	if newStatus != nil && *newStatus != current {
		log.WithCloud(cloudName).Info().
			Str("status", (*newStatus).String()).
			Msg("cloud_health_transition")
		current = *newStatus
		r.clouds[cloudName] = current
	}

	return current
}

// Stack reads (and optionally upserts) the status of a stack on a cloud.
func (r *Registry) Stack(stackName, cloudName string, newStatus *StackStatus) StackStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := stackKey{cloud: cloudName, stack: stackName}

	current, ok := r.stacks[key]
	if !ok {
		current = StackNotChecked
		r.stacks[key] = current
	}

	if newStatus != nil && *newStatus != current {
		log.WithCloud(cloudName).Info().
			Str("stack_name", stackName).
			Str("status", (*newStatus).String()).
			Msg("stack_health_transition")
		current = *newStatus
		r.stacks[key] = current
	}

	return current
}

// Available reports whether a stack may currently receive traffic on a
// cloud: the cloud connection must be healthy and the stack on that
// cloud must be healthy.
func (r *Registry) Available(stackName, cloudName string) bool {
	return r.Cloud(cloudName, nil) == CloudHealthy &&
		r.Stack(stackName, cloudName, nil) == StackHealthy
}
