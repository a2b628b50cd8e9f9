// Package conflict provides conflict resolution between local edits and
// authoritative server state.
//
// Resolution is a pure decision: the resolver maps a (local, server)
// record pair to one of four outcomes and never touches storage or the
// network. Side effects are the orchestrator's job.
package conflict

import (
	"encoding/json"

	"github.com/kurniadi/farmnexus/internal/logging"
	"github.com/kurniadi/farmnexus/internal/models"
)

// Action is one of the four conflict-resolution outcomes.
type Action string

const (
	// ActionServerWins overwrites the local record with the server
	// payload and marks it synced.
	ActionServerWins Action = "server_wins"
	// ActionClientWins keeps the local payload; the record stays pending
	// so it is retried on the next cycle rather than silently succeeding.
	ActionClientWins Action = "client_wins"
	// ActionMerge applies a field-level combination of both payloads and
	// marks the record synced.
	ActionMerge Action = "merge"
	// ActionManual parks the record in conflict status until an external
	// actor resolves it.
	ActionManual Action = "manual"
)

// Resolution is the decision for one conflict. Payload is the payload
// to apply locally for ServerWins and Merge; it is unused for
// ClientWins and Manual.
type Resolution struct {
	Action  Action
	Payload json.RawMessage
}

// Strategy maps a conflict to a resolution. Strategies must be pure.
type Strategy func(c models.ConflictRecord) Resolution

// ServerWins returns the default strategy: the server payload replaces
// the local one.
func ServerWins() Strategy {
	return func(c models.ConflictRecord) Resolution {
		return Resolution{Action: ActionServerWins, Payload: c.ServerPayload}
	}
}

// ClientWins returns a strategy that keeps the local payload and leaves
// the record pending for resync.
func ClientWins() Strategy {
	return func(c models.ConflictRecord) Resolution {
		return Resolution{Action: ActionClientWins, Payload: c.LocalPayload}
	}
}

// MergeFunc combines both payloads into one.
type MergeFunc func(local, server json.RawMessage) (json.RawMessage, error)

// Merge returns a strategy that applies a caller-supplied field-level
// combination. If the combine function fails, the conflict falls back
// to manual resolution rather than being dropped mid-cycle.
func Merge(combine MergeFunc) Strategy {
	return func(c models.ConflictRecord) Resolution {
		merged, err := combine(c.LocalPayload, c.ServerPayload)
		if err != nil {
			logging.Warn("Merge failed, falling back to manual resolution", map[string]interface{}{
				"table":     c.Table,
				"record_id": c.RecordID,
				"error":     err.Error(),
			})
			return Resolution{Action: ActionManual}
		}
		return Resolution{Action: ActionMerge, Payload: merged}
	}
}

// Manual returns a strategy that defers every conflict to an external
// actor.
func Manual() Strategy {
	return func(c models.ConflictRecord) Resolution {
		return Resolution{Action: ActionManual}
	}
}

// Resolver applies a configured strategy to conflicts.
type Resolver struct {
	strategy Strategy
}

// NewResolver creates a Resolver. A nil strategy selects ServerWins.
func NewResolver(strategy Strategy) *Resolver {
	if strategy == nil {
		strategy = ServerWins()
	}
	return &Resolver{strategy: strategy}
}

// Resolve maps a conflict to its resolution.
func (r *Resolver) Resolve(c models.ConflictRecord) Resolution {
	res := r.strategy(c)

	logging.Info("Conflict resolved", map[string]interface{}{
		"table":      c.Table,
		"record_id":  c.RecordID,
		"resolution": string(res.Action),
	})

	return res
}
