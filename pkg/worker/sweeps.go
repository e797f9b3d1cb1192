package worker

import (
	"context"
	"time"

	"github.com/campuskeep/circulate/pkg/models"
	"github.com/robinjoseph08/golib/logger"
)

// ProcessReservationExpiryJob expires lapsed reservations, releasing any
// copies they were holding and promoting the next entries in line.
func (w *Worker) ProcessReservationExpiryJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)

	expired, err := w.reservationService.ExpireDue(ctx, time.Now())
	if err != nil {
		return err
	}

	log.Info("reservation expiry sweep finished", logger.Data{"expired": expired})
	return nil
}

// ProcessOverdueSweepJob persists the overdue status on open borrowings past
// their due date and notifies the borrowers. Reporting only; fines derive
// from dates regardless of whether this ran.
func (w *Worker) ProcessOverdueSweepJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)

	marked, err := w.borrowingService.SweepOverdue(ctx, time.Now())
	if err != nil {
		return err
	}

	log.Info("overdue sweep finished", logger.Data{"marked_overdue": marked})
	return nil
}
