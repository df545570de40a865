/*
Package notify emits and tracks per-user notifications.

PURPOSE:
  Lifecycle events (permit submitted, permit reviewed, account created)
  produce inbox entries for their recipients. Notifications are
  append-only except for the read flag, and a recipient can only touch
  their own inbox.

DELIVERY:
  Synchronous with the triggering event. The ledger and review engine
  build notification records with Build and persist them inside the same
  store transaction as the triggering write, so a permit never exists
  without its notification (and vice versa).

SEE ALSO:
  - permit: builds submission/review notifications
  - store/sqlite: persistence
*/
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/permitdesk/permitdesk/domain"
)

// Store is the persistence the dispatcher needs.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	SetNotificationRead(ctx context.Context, id string) error
	CountUnread(ctx context.Context, recipientID string) (int, error)
	NotificationsByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error)
}

// Build creates an unread notification record stamped now. It does not
// persist; callers that need the record inside a larger transaction pass
// it to the store themselves.
func Build(recipientID, title, message string) domain.Notification {
	return domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Read:        false,
		CreatedAt:   time.Now().UTC(),
	}
}

// Dispatcher creates and queries notifications.
type Dispatcher struct {
	store Store
}

func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{store: store}
}

// Notify persists a new unread notification for the recipient.
func (d *Dispatcher) Notify(ctx context.Context, recipientID, title, message string) (domain.Notification, error) {
	n := Build(recipientID, title, message)
	if err := d.store.InsertNotification(ctx, n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// MarkRead flips the read flag. Fails with NotFound for unknown ids and
// Forbidden when the notification belongs to someone else.
func (d *Dispatcher) MarkRead(ctx context.Context, id, recipientID string) error {
	n, err := d.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return domain.ErrNotFound
	}
	if n.RecipientID != recipientID {
		return domain.ErrForbidden
	}
	if n.Read {
		return nil // already read; idempotent
	}
	return d.store.SetNotificationRead(ctx, id)
}

// UnreadCount returns the number of unread notifications, used by
// dashboards to badge navigation.
func (d *Dispatcher) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return d.store.CountUnread(ctx, recipientID)
}

// ListForRecipient returns the recipient's notifications newest first.
func (d *Dispatcher) ListForRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	return d.store.NotificationsByRecipient(ctx, recipientID)
}
