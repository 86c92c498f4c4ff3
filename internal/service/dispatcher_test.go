package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metal-rates-alerts/internal/alerting"
	"metal-rates-alerts/internal/storage"
)

func newDispatcherFixture(t *testing.T) (*Dispatcher, *fakeRateStore, *fakeRegistry, *fakeDeliverer) {
	t.Helper()
	store := newFakeRateStore(date(2000, time.January, 1))
	registry := newFakeRegistry()
	deliverer := newFakeDeliverer()
	d := NewDispatcher(store, registry, deliverer, time.Second, 0, zerolog.Nop())
	return d, store, registry, deliverer
}

func makePending(t *testing.T, registry *fakeRegistry, chatID int64) {
	t.Helper()
	if _, err := registry.Subscribe(context.Background(), chatID); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := registry.ResetAllPending(context.Background()); err != nil {
		t.Fatalf("reset pending: %v", err)
	}
}

func insertGold(t *testing.T, store *fakeRateStore, day time.Time, gold string) {
	t.Helper()
	value := decimal.RequireFromString(gold)
	err := store.InsertRate(context.Background(), storage.MetalRate{Date: day, Gold: &value})
	if err != nil {
		t.Fatalf("insert rate: %v", err)
	}
}

func TestDispatcherDeliversAndClearsPending(t *testing.T) {
	d, store, registry, deliverer := newDispatcherFixture(t)
	insertGold(t, store, date(2024, time.June, 1), "5184.57")
	makePending(t, registry, 1)

	if err := d.sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if deliverer.attemptsFor(1) != 1 {
		t.Fatalf("expected one delivery attempt, got %d", deliverer.attemptsFor(1))
	}
	sub := registry.get(1)
	if sub.Pending {
		t.Fatal("successful delivery must clear pending")
	}
	if !sub.Active {
		t.Fatal("successful delivery must not deactivate")
	}
}

func TestDispatcherAtMostOneAttemptPerSweep(t *testing.T) {
	d, store, registry, deliverer := newDispatcherFixture(t)
	insertGold(t, store, date(2024, time.June, 1), "5184.57")
	makePending(t, registry, 1)
	makePending(t, registry, 2)
	makePending(t, registry, 3)

	if err := d.sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	for _, chatID := range []int64{1, 2, 3} {
		if got := deliverer.attemptsFor(chatID); got != 1 {
			t.Fatalf("chat %d: expected exactly one attempt per sweep, got %d", chatID, got)
		}
	}
}

func TestDispatcherTransientFailureRetriesNextSweep(t *testing.T) {
	d, store, registry, deliverer := newDispatcherFixture(t)
	insertGold(t, store, date(2024, time.June, 1), "5184.57")
	makePending(t, registry, 1)

	deliverer.failWith[1] = &alerting.DeliveryError{ChatID: 1, Status: 502}

	_ = d.sweep(context.Background())

	sub := registry.get(1)
	if !sub.Pending {
		t.Fatal("transient failure must keep the subscriber pending")
	}
	if !sub.Active {
		t.Fatal("transient failure must not deactivate")
	}

	delete(deliverer.failWith, 1)
	_ = d.sweep(context.Background())

	if deliverer.attemptsFor(1) != 2 {
		t.Fatalf("expected a retry on the next sweep, got %d attempts", deliverer.attemptsFor(1))
	}
	if registry.get(1).Pending {
		t.Fatal("retry success must clear pending")
	}
}

func TestDispatcherPermanentFailureDeactivates(t *testing.T) {
	d, store, registry, deliverer := newDispatcherFixture(t)
	insertGold(t, store, date(2024, time.June, 1), "5184.57")
	makePending(t, registry, 1)

	deliverer.failWith[1] = &alerting.DeliveryError{ChatID: 1, Status: 403, Permanent: true}

	_ = d.sweep(context.Background())

	sub := registry.get(1)
	if sub.Active {
		t.Fatal("permanent failure must deactivate the subscription")
	}
	if !sub.Pending {
		t.Fatal("deactivation must leave the pending flag untouched")
	}

	// Deactivation is final: no more deliveries until an explicit subscribe.
	_ = d.sweep(context.Background())
	if deliverer.attemptsFor(1) != 1 {
		t.Fatalf("deactivated subscriber must not be retried, got %d attempts", deliverer.attemptsFor(1))
	}
}

func TestDispatcherSkipsSweepWithoutStoredRecord(t *testing.T) {
	d, _, registry, deliverer := newDispatcherFixture(t)
	makePending(t, registry, 1)

	if err := d.sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if deliverer.attemptsFor(1) != 0 {
		t.Fatal("no delivery without a stored record")
	}
	if !registry.get(1).Pending {
		t.Fatal("pending must survive a skipped sweep")
	}
}

func TestDispatcherMessageIncludesDelta(t *testing.T) {
	d, store, registry, deliverer := newDispatcherFixture(t)
	insertGold(t, store, date(2024, time.May, 31), "5301.45")
	insertGold(t, store, date(2024, time.June, 1), "5184.57")
	makePending(t, registry, 1)

	if err := d.sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if len(deliverer.texts) != 1 {
		t.Fatalf("expected one message, got %d", len(deliverer.texts))
	}
	if !strings.Contains(deliverer.texts[0], "-116.88") {
		t.Fatalf("message must diff against the previous record: %q", deliverer.texts[0])
	}
}

func TestSubscribeAdvanceDeliverFlow(t *testing.T) {
	store := newFakeRateStore(date(2000, time.January, 1))
	registry := newFakeRegistry()
	settings := &fakeSettings{}
	deliverer := newFakeDeliverer()

	detector := NewDetector(store, registry, settings, time.Minute, zerolog.Nop())
	dispatcher := NewDispatcher(store, registry, deliverer, time.Second, 0, zerolog.Nop())

	// Subscribing before any data must not mark the subscriber pending.
	if result, _ := registry.Subscribe(context.Background(), 42); result != storage.ResultOK {
		t.Fatalf("first subscribe must succeed, got %s", result)
	}
	if result, _ := registry.Subscribe(context.Background(), 42); result != storage.ResultAlready {
		t.Fatalf("second subscribe must be a no-op, got %s", result)
	}
	if registry.get(42).Pending {
		t.Fatal("fresh subscription owes nothing")
	}

	insertGold(t, store, date(2024, time.June, 1), "5184.57")
	if err := detector.checkOnce(context.Background()); err != nil {
		t.Fatalf("detector check failed: %v", err)
	}
	if !registry.get(42).Pending {
		t.Fatal("date advance must flag the subscriber")
	}

	if err := dispatcher.sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	sub := registry.get(42)
	if sub.Pending || !sub.Active {
		t.Fatalf("after delivery: pending=%v active=%v, want false/true", sub.Pending, sub.Active)
	}
	if deliverer.attemptsFor(42) != 1 {
		t.Fatalf("expected one delivery, got %d", deliverer.attemptsFor(42))
	}
}
