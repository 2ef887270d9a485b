package poller

import (
	"context"
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/robfig/cron/v3"

	"hello-backend/config"
	"hello-backend/internal/fetcher"
	"hello-backend/internal/metrics"
	"hello-backend/internal/notification"
	"hello-backend/internal/store"
)

// Service polls the upstream endpoint and records every payload as a snapshot.
type Service struct {
	cfg        *config.Config
	fetcher    fetcher.DataFetcher
	store      store.Store
	workerPool *notification.WorkerPool
	metrics    *metrics.Poller
	now        func() time.Time
}

// NewService creates and initializes a new poller service.
func NewService(cfg *config.Config, f fetcher.DataFetcher, s store.Store) *Service {
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Service{
		cfg:        cfg,
		fetcher:    f,
		store:      s,
		workerPool: notification.NewWorkerPool(cfg.WorkerPool.Size, s, &webpushOptions),
		now:        time.Now,
	}
}

// WithMetrics makes the service record every poll cycle in m.
func (s *Service) WithMetrics(m *metrics.Poller) *Service {
	s.metrics = m
	return s
}

// Run polls once immediately and then on the configured cron schedule until
// ctx is cancelled. A poll still in flight when the next one is due is not
// overlapped; the later tick is skipped.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Poller.Enabled {
		log.Println("Poller is disabled. Not starting.")
		return
	}
	log.Printf("Starting poller service with schedule %q...", s.cfg.Poller.Schedule)

	s.workerPool.Start(ctx)

	s.PollOnce(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.cfg.Poller.Schedule, func() { s.PollOnce(ctx) }); err != nil {
		log.Printf("Error scheduling poller: %v", err)
		return
	}
	c.Start()

	<-ctx.Done()
	log.Println("Poller service shutting down.")
	<-c.Stop().Done()
}

// PollOnce fetches the payload once, stores it and dispatches a notification
// when it differs from the previous snapshot. Fetch failures are logged and the
// cycle is abandoned; the next scheduled cycle tries again.
func (s *Service) PollOnce(ctx context.Context) {
	log.Println("Executing poll cycle...")
	started := s.now()

	payload, err := s.fetcher.FetchData(ctx)
	if err != nil {
		log.Printf("Poll cycle aborted: %v", err)
		s.metrics.ObservePoll(metrics.ResultFetchError, started, s.now())
		return
	}

	snap, err := s.store.SaveSnapshot(ctx, s.now(), payload)
	if err != nil {
		log.Printf("Error saving snapshot: %v", err)
		s.metrics.ObservePoll(metrics.ResultStoreError, started, s.now())
		return
	}
	s.metrics.ObservePoll(metrics.ResultOK, started, s.now())

	if snap.Changed {
		log.Printf("Payload changed (digest %s); dispatching notifications for snapshot %s", snap.Digest, snap.ID)
		s.metrics.IncChanged()
		s.workerPool.Dispatch(snap.ID)
	}

	if _, err := s.store.PruneSnapshots(ctx, s.cfg.Poller.KeepSnapshots); err != nil {
		log.Printf("Error pruning snapshots: %v", err)
	}

	log.Println("Poll cycle finished.")
}
