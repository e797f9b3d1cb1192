package worker

import (
	"context"
	"time"

	"github.com/campuskeep/circulate/pkg/jobs"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/robinjoseph08/golib/logger"
)

// Scheduler enqueues the recurring sweep jobs. It only writes to the jobs
// table; the worker picks them up through the normal polling loop, so a
// multi-process deployment schedules at most one sweep of each type at a
// time.
type Scheduler struct {
	interval   time.Duration
	log        logger.Logger
	jobService *jobs.Service

	shutdown chan struct{}
	done     chan struct{}
}

func NewScheduler(interval time.Duration, jobService *jobs.Service) *Scheduler {
	return &Scheduler{
		interval:   interval,
		log:        logger.New(),
		jobService: jobService,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	timer := time.NewTimer(s.interval)

	for {
		select {
		case <-s.shutdown:
			s.done <- struct{}{}
			return
		case <-timer.C:
			s.enqueueSweeps(context.Background())
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) enqueueSweeps(ctx context.Context) {
	for _, jobType := range []string{models.JobTypeReservationExpiry, models.JobTypeOverdueSweep} {
		hasActive, err := s.jobService.HasActiveJobByType(ctx, jobType)
		if err != nil {
			s.log.Err(err).Error("check active job error")
			continue
		}
		if hasActive {
			continue
		}

		job := &models.Job{
			Type:   jobType,
			Status: models.JobStatusPending,
			Data:   "{}",
		}
		if err := s.jobService.CreateJob(ctx, job); err != nil {
			s.log.Err(err).Error("enqueue sweep job error")
			continue
		}
		s.log.Info("sweep job enqueued", logger.Data{"job_id": job.ID, "type": jobType})
	}
}

func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	<-s.done
}
