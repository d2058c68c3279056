package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"boohpay/config"
	"boohpay/internal/models"

	"go.uber.org/zap"
)

// Processor executes one payout job. progress reports completion percentages.
type Processor interface {
	Process(ctx context.Context, job *models.PayoutJob, progress func(pct int)) error
}

// FinalFailureHandler runs once a job has failed its last attempt.
type FinalFailureHandler func(ctx context.Context, job *models.PayoutJob, err error)

type WorkerPool struct {
	q            *PayoutQueue
	proc         Processor
	onFinal      FinalFailureHandler
	workers      int
	poll         time.Duration
	heartbeat    time.Duration
	stallTimeout time.Duration
	stallSweep   time.Duration
	log          *zap.Logger
}

func NewWorkerPool(q *PayoutQueue, proc Processor, onFinal FinalFailureHandler, cfg config.PayoutQueueConfig, log *zap.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = time.Minute
	}
	if cfg.StallSweep <= 0 {
		cfg.StallSweep = 30 * time.Second
	}
	heartbeat := cfg.StallTimeout / 3
	if heartbeat < time.Second {
		heartbeat = time.Second
	}
	return &WorkerPool{
		q:            q,
		proc:         proc,
		onFinal:      onFinal,
		workers:      cfg.Workers,
		poll:         cfg.PollInterval,
		heartbeat:    heartbeat,
		stallTimeout: cfg.StallTimeout,
		stallSweep:   cfg.StallSweep,
		log:          log.Named("payout_workers"),
	}
}

// Run starts the workers and the stall sweeper and blocks until ctx is done.
// Jobs already running when ctx ends are allowed to finish.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("worker-%d-%d", time.Now().UnixNano()%100000, i)
		go func() {
			defer wg.Done()
			p.loop(ctx, workerID)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sweep(ctx)
	}()
	p.log.Info("payout workers started", zap.Int("workers", p.workers))
	wg.Wait()
	p.log.Info("payout workers stopped")
}

func (p *WorkerPool) loop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		for {
			ran, err := p.RunOnce(ctx, workerID)
			if err != nil {
				p.log.Error("worker iteration", zap.String("worker_id", workerID), zap.Error(err))
			}
			if !ran || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *WorkerPool) sweep(ctx context.Context) {
	ticker := time.NewTicker(p.stallSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.q.RecoverStalled(ctx, p.stallTimeout)
			if err != nil {
				p.log.Error("stall sweep", zap.Error(err))
			} else if n > 0 {
				p.log.Warn("requeued stalled payout jobs", zap.Int64("count", n))
			}
		}
	}
}

// RunOnce claims and runs at most one due job. It reports whether a job ran.
func (p *WorkerPool) RunOnce(ctx context.Context, workerID string) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	job, err := p.q.claim(ctx, workerID)
	if err != nil || job == nil {
		return false, err
	}
	// Shutdown does not abort a claimed job.
	jobCtx := context.WithoutCancel(ctx)
	log := p.log.With(zap.String("job_id", job.ID), zap.String("worker_id", workerID), zap.Int("attempt", job.AttemptsMade))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(p.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := p.q.heartbeat(jobCtx, job.ID, workerID); err != nil {
					log.Warn("heartbeat", zap.Error(err))
				}
			}
		}
	}()

	perr := p.safeProcess(jobCtx, job, func(pct int) {
		if err := p.q.setProgress(jobCtx, job.ID, pct); err != nil {
			log.Warn("progress", zap.Error(err))
		}
	})
	close(stop)
	<-done

	if perr == nil {
		log.Info("payout job completed")
		return true, p.q.complete(jobCtx, job.ID, workerID)
	}
	final, err := p.q.fail(jobCtx, job, perr)
	if err != nil {
		return true, err
	}
	if final {
		log.Error("payout job failed permanently", zap.Error(perr))
		if p.onFinal != nil {
			p.onFinal(jobCtx, job, perr)
		}
	} else {
		log.Warn("payout job attempt failed", zap.Error(perr), zap.Duration("retry_in", p.q.Backoff(job.AttemptsMade)))
	}
	return true, nil
}

func (p *WorkerPool) safeProcess(ctx context.Context, job *models.PayoutJob, progress func(int)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p.proc.Process(ctx, job, progress)
}
