// Package notifications fans circulation events out to borrowers. Delivery
// is fire and forget: a dispatcher never returns an error into the engine
// flow that raised the event.
package notifications

import (
	"context"
	"time"

	"github.com/robinjoseph08/golib/logger"
)

// Event types emitted by the circulation and reservation engines.
const (
	EventCopyReady          = "copy_ready"
	EventReservationExpired = "reservation_expired"
	EventBorrowingOverdue   = "borrowing_overdue"
)

// Event is a single notification to a user.
type Event struct {
	Type          string
	UserID        int
	CopyID        int
	ReservationID *int
	BorrowingID   *int
	ExpiryDate    *time.Time
}

// Dispatcher delivers events.
type Dispatcher interface {
	Notify(ctx context.Context, event Event)
}

// LogDispatcher writes every event to the structured log. It's the default
// until a real mail or push integration slots in behind the interface.
type LogDispatcher struct {
	log logger.Logger
}

func NewLogDispatcher(log logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Notify(ctx context.Context, event Event) {
	data := logger.Data{
		"event_type": event.Type,
		"user_id":    event.UserID,
		"copy_id":    event.CopyID,
	}
	if event.ReservationID != nil {
		data["reservation_id"] = *event.ReservationID
	}
	if event.BorrowingID != nil {
		data["borrowing_id"] = *event.BorrowingID
	}
	if event.ExpiryDate != nil {
		data["expiry_date"] = event.ExpiryDate.Format(time.RFC3339)
	}
	d.log.Info("notification dispatched", data)
}

// NoopDispatcher drops every event. Used in tests that don't assert on
// notifications.
type NoopDispatcher struct{}

func (NoopDispatcher) Notify(ctx context.Context, event Event) {}
