// Package conflict provides unit tests for conflict resolution.
package conflict

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/kurniadi/farmnexus/internal/models"
)

func sampleConflict() models.ConflictRecord {
	return models.ConflictRecord{
		Table:         "crops",
		RecordID:      "rec-1",
		LocalPayload:  json.RawMessage(`{"name":"A"}`),
		ServerPayload: json.RawMessage(`{"name":"B"}`),
	}
}

// TestDefaultStrategyIsServerWins tests that a nil strategy resolves to
// the server payload.
func TestDefaultStrategyIsServerWins(t *testing.T) {
	r := NewResolver(nil)

	res := r.Resolve(sampleConflict())

	if res.Action != ActionServerWins {
		t.Errorf("Expected server_wins, got %s", res.Action)
	}
	if string(res.Payload) != `{"name":"B"}` {
		t.Errorf("Expected server payload, got %s", res.Payload)
	}
}

// TestServerWinsDeterminism tests the decision is stable across calls.
func TestServerWinsDeterminism(t *testing.T) {
	r := NewResolver(ServerWins())

	for i := 0; i < 3; i++ {
		res := r.Resolve(sampleConflict())
		if res.Action != ActionServerWins || string(res.Payload) != `{"name":"B"}` {
			t.Fatalf("Resolution changed on call %d: %s %s", i, res.Action, res.Payload)
		}
	}
}

// TestClientWins tests that the local payload is kept.
func TestClientWins(t *testing.T) {
	r := NewResolver(ClientWins())

	res := r.Resolve(sampleConflict())

	if res.Action != ActionClientWins {
		t.Errorf("Expected client_wins, got %s", res.Action)
	}
	if string(res.Payload) != `{"name":"A"}` {
		t.Errorf("Expected local payload, got %s", res.Payload)
	}
}

// TestMergeCombinesPayloads tests the caller-supplied combine function.
func TestMergeCombinesPayloads(t *testing.T) {
	combine := func(local, server json.RawMessage) (json.RawMessage, error) {
		var merged map[string]interface{}
		if err := json.Unmarshal(server, &merged); err != nil {
			return nil, err
		}
		var mine map[string]interface{}
		if err := json.Unmarshal(local, &mine); err != nil {
			return nil, err
		}
		for k, v := range mine {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
		return json.Marshal(merged)
	}

	r := NewResolver(Merge(combine))
	res := r.Resolve(models.ConflictRecord{
		Table:         "crops",
		RecordID:      "rec-1",
		LocalPayload:  json.RawMessage(`{"name":"A","notes":"local"}`),
		ServerPayload: json.RawMessage(`{"name":"B"}`),
	})

	if res.Action != ActionMerge {
		t.Fatalf("Expected merge, got %s", res.Action)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(res.Payload, &fields); err != nil {
		t.Fatalf("Merged payload not valid JSON: %v", err)
	}
	if fields["name"] != "B" {
		t.Errorf("Expected server field to win in combine, got %v", fields["name"])
	}
	if fields["notes"] != "local" {
		t.Errorf("Expected local-only field to survive, got %v", fields["notes"])
	}
}

// TestMergeFailureFallsBackToManual tests that a failing combine never
// leaves a conflict unresolved.
func TestMergeFailureFallsBackToManual(t *testing.T) {
	r := NewResolver(Merge(func(local, server json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("fields diverged")
	}))

	res := r.Resolve(sampleConflict())

	if res.Action != ActionManual {
		t.Errorf("Expected manual fallback, got %s", res.Action)
	}
}

// TestManualStrategy tests the manual outcome.
func TestManualStrategy(t *testing.T) {
	r := NewResolver(Manual())

	res := r.Resolve(sampleConflict())

	if res.Action != ActionManual {
		t.Errorf("Expected manual, got %s", res.Action)
	}
}
