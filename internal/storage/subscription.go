package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	selectSubscriptionForUpdateSQL = `SELECT
        chat_id, is_active, is_pending, created_at, modified_at
    FROM subscriptions
    WHERE chat_id = $1
    FOR UPDATE;`

	insertSubscriptionSQL = `INSERT INTO subscriptions (
        chat_id, is_active, is_pending
    ) VALUES ($1, $2, $3);`

	updateSubscriptionSQL = `UPDATE subscriptions
    SET is_active = $2, is_pending = $3, modified_at = now()
    WHERE chat_id = $1;`

	isActiveSQL = `SELECT EXISTS (
        SELECT 1 FROM subscriptions WHERE chat_id = $1 AND is_active
    );`

	activePendingSQL = `SELECT
        chat_id, is_active, is_pending, created_at, modified_at
    FROM subscriptions
    WHERE is_active AND is_pending
    ORDER BY chat_id;`

	listSubscriptionsSQL = `SELECT
        chat_id, is_active, is_pending, created_at, modified_at
    FROM subscriptions
    ORDER BY created_at;`

	resetAllPendingSQL = `UPDATE subscriptions
    SET is_pending = TRUE, modified_at = now()
    WHERE is_active AND NOT is_pending;`

	markSentSQL = `UPDATE subscriptions
    SET is_pending = FALSE, modified_at = now()
    WHERE chat_id = $1;`

	deactivateSQL = `UPDATE subscriptions
    SET is_active = FALSE, modified_at = now()
    WHERE chat_id = $1;`
)

// SubscriptionStore defines the subscriber registry surface.
type SubscriptionStore interface {
	Subscribe(ctx context.Context, chatID int64) (SubscribeResult, error)
	Unsubscribe(ctx context.Context, chatID int64) (SubscribeResult, error)
	IsActive(ctx context.Context, chatID int64) (bool, error)
	ActivePending(ctx context.Context) ([]Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	ResetAllPending(ctx context.Context) (int64, error)
	MarkSent(ctx context.Context, chatID int64) error
	Deactivate(ctx context.Context, chatID int64) error
}

// planSubscribe decides the subscribe transition for an existing row (nil
// when the chat was never seen). It returns the desired row state, or nil
// when the call is a no-op.
func planSubscribe(existing *Subscription, pendingOnSubscribe bool) (SubscribeResult, *Subscription) {
	if existing != nil && existing.Active {
		return ResultAlready, nil
	}

	desired := Subscription{
		Active:  true,
		Pending: pendingOnSubscribe,
	}
	if existing != nil {
		desired.ChatID = existing.ChatID
		desired.CreatedAt = existing.CreatedAt
	}
	return ResultOK, &desired
}

// planUnsubscribe decides the unsubscribe transition. Inactive or unknown
// subscribers are a no-op.
func planUnsubscribe(existing *Subscription) (SubscribeResult, *Subscription) {
	if existing == nil || !existing.Active {
		return ResultAlready, nil
	}
	desired := *existing
	desired.Active = false
	return ResultOK, &desired
}

// Subscribe creates or reactivates a subscription. An already-active
// subscription is reported as ResultAlready and left untouched.
func (s *Store) Subscribe(ctx context.Context, chatID int64) (SubscribeResult, error) {
	return s.transition(ctx, chatID, func(existing *Subscription) (SubscribeResult, *Subscription) {
		return planSubscribe(existing, s.pendingOnSubscribe)
	})
}

// Unsubscribe deactivates a subscription without deleting it.
func (s *Store) Unsubscribe(ctx context.Context, chatID int64) (SubscribeResult, error) {
	return s.transition(ctx, chatID, planUnsubscribe)
}

func (s *Store) transition(
	ctx context.Context,
	chatID int64,
	plan func(existing *Subscription) (SubscribeResult, *Subscription),
) (SubscribeResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return ResultAlready, err
	}

	release, err := s.gate.enter(ctx)
	if err != nil {
		return ResultAlready, err
	}
	defer release()

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ResultAlready, fmt.Errorf("begin subscription tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := lockSubscription(ctx, tx, chatID)
	if err != nil {
		return ResultAlready, err
	}

	result, desired := plan(existing)
	if desired == nil {
		return result, tx.Commit(ctx)
	}

	if existing == nil {
		_, err = tx.Exec(ctx, insertSubscriptionSQL, chatID, desired.Active, desired.Pending)
	} else {
		_, err = tx.Exec(ctx, updateSubscriptionSQL, chatID, desired.Active, desired.Pending)
	}
	if err != nil {
		return ResultAlready, fmt.Errorf("apply subscription transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ResultAlready, fmt.Errorf("commit subscription tx: %w", err)
	}
	return result, nil
}

func lockSubscription(ctx context.Context, tx pgx.Tx, chatID int64) (*Subscription, error) {
	var sub Subscription
	err := tx.QueryRow(ctx, selectSubscriptionForUpdateSQL, chatID).Scan(
		&sub.ChatID,
		&sub.Active,
		&sub.Pending,
		&sub.CreatedAt,
		&sub.ModifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}
	return &sub, nil
}

// IsActive reports whether the chat has an active subscription.
func (s *Store) IsActive(ctx context.Context, chatID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var active bool
	if scanErr := pool.QueryRow(ctx, isActiveSQL, chatID).Scan(&active); scanErr != nil {
		return false, fmt.Errorf("is active: %w", scanErr)
	}
	return active, nil
}

// ActivePending lists subscribers owed a notification.
func (s *Store) ActivePending(ctx context.Context) ([]Subscription, error) {
	return s.listSubscriptions(ctx, activePendingSQL)
}

// ListSubscriptions lists every registry row, oldest first.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	return s.listSubscriptions(ctx, listSubscriptionsSQL)
}

func (s *Store) listSubscriptions(ctx context.Context, query string) ([]Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ChatID, &sub.Active, &sub.Pending, &sub.CreatedAt, &sub.ModifiedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ResetAllPending marks every active subscriber as owed a notification and
// returns how many rows flipped. Used only by the change detector.
func (s *Store) ResetAllPending(ctx context.Context) (int64, error) {
	return s.execGated(ctx, resetAllPendingSQL)
}

// MarkSent clears the pending flag after a successful delivery.
func (s *Store) MarkSent(ctx context.Context, chatID int64) error {
	_, err := s.execGated(ctx, markSentSQL, chatID)
	return err
}

// Deactivate turns a subscription off after a permanent delivery failure.
// The pending flag is left as is.
func (s *Store) Deactivate(ctx context.Context, chatID int64) error {
	_, err := s.execGated(ctx, deactivateSQL, chatID)
	return err
}

func (s *Store) execGated(ctx context.Context, query string, args ...any) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	release, err := s.gate.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	tag, execErr := pool.Exec(ctx, query, args...)
	if execErr != nil {
		return 0, fmt.Errorf("exec subscription update: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

var _ SubscriptionStore = (*Store)(nil)
