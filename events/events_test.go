package events

import (
	"testing"
	"time"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus()

	id, eventChan := eventBus.Subscribe()

	// Verify subscription count
	if count := eventBus.GetTotalSubscriptions(); count != 1 {
		t.Errorf("Expected 1 subscriber, got %d", count)
	}

	txHash := "test-tx-hash"
	event := NewCommandApplied(txHash, "transfer", "caller", 7)

	// Publish event in goroutine to avoid blocking
	go func() {
		eventBus.Publish(event)
	}()

	// Wait for event
	select {
	case receivedEvent := <-eventChan:
		if receivedEvent.Type() != EventCommandApplied {
			t.Errorf("Expected CommandApplied, got %s", receivedEvent.Type())
		}
		if receivedEvent.TxHash() != txHash {
			t.Errorf("Expected txHash %s, got %s", txHash, receivedEvent.TxHash())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Test unsubscribe
	eventBus.Unsubscribe(id)

	// Verify subscription count is 0
	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestLedgerEvents(t *testing.T) {
	applied := NewCommandApplied("tx-hash", "transfer", "caller", 12)
	if applied.Type() != EventCommandApplied {
		t.Errorf("Expected CommandApplied, got %s", applied.Type())
	}
	if applied.Height() != 12 {
		t.Errorf("Expected height 12, got %d", applied.Height())
	}

	failed := NewCommandFailed("tx-hash", "transfer", "caller", 12, "insufficient_funds", "Not enough balance for this transfer")
	if failed.Type() != EventCommandFailed {
		t.Errorf("Expected CommandFailed, got %s", failed.Type())
	}
	if failed.Code() != "insufficient_funds" {
		t.Errorf("Expected code insufficient_funds, got %s", failed.Code())
	}

	committed := NewBlockCommitted(42, "ab12", 3)
	if committed.Type() != EventBlockCommitted {
		t.Errorf("Expected BlockCommitted, got %s", committed.Type())
	}
	if committed.TxHash() != "" {
		t.Errorf("Expected empty tx hash on block event, got %s", committed.TxHash())
	}
	if committed.Commands() != 3 {
		t.Errorf("Expected 3 commands, got %d", committed.Commands())
	}
}

func TestMultipleSubscribers(t *testing.T) {
	eventBus := NewEventBus()

	id1, eventChan1 := eventBus.Subscribe()
	id2, eventChan2 := eventBus.Subscribe()

	// Verify subscription count
	if count := eventBus.GetTotalSubscriptions(); count != 2 {
		t.Errorf("Expected 2 subscribers, got %d", count)
	}

	txHash := "test-tx-hash"
	event := NewCommandApplied(txHash, "kv_put", "caller", 3)

	// Publish event
	eventBus.Publish(event)

	// Both subscribers should receive the event
	select {
	case receivedEvent := <-eventChan1:
		if receivedEvent.TxHash() != txHash {
			t.Errorf("Expected txHash %s, got %s", txHash, receivedEvent.TxHash())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event on channel 1")
	}

	select {
	case receivedEvent := <-eventChan2:
		if receivedEvent.TxHash() != txHash {
			t.Errorf("Expected txHash %s, got %s", txHash, receivedEvent.TxHash())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event on channel 2")
	}

	// Clean up
	eventBus.Unsubscribe(id1)
	eventBus.Unsubscribe(id2)

	// Verify subscription count is 0
	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestNilRouterDropsEvents(t *testing.T) {
	var router *Router
	// Must not panic
	router.PublishCommandEvent(NewCommandApplied("h", "transfer", "caller", 1))
	router.PublishBlockCommitted(1, [32]byte{}, 0)
}
