package alerting

import (
	"context"
	"errors"
	"fmt"
)

// Deliverer sends one text notification to one recipient.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// DeliveryError describes a failed delivery attempt. Permanent failures
// (recipient unreachable or blocked the bot) deactivate the subscription;
// everything else is retried on a later sweep.
type DeliveryError struct {
	ChatID      int64
	Status      int
	Description string
	Permanent   bool
	Err         error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Description != "" {
		return fmt.Sprintf("deliver to %d: %s failure (%d): %s", e.ChatID, kind, e.Status, e.Description)
	}
	return fmt.Sprintf("deliver to %d: %s failure: %v", e.ChatID, kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether the delivery failed in a way that retrying
// can never fix.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
