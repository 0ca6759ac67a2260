package cron

import (
	"context"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/codewatch/config"
	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/tracing"
)

const (
	JobHeartbeat = "heartbeat"
	JobResync    = "resync"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	leaderElectionGrace = 5 * time.Second
)

// CronManager schedules the heartbeat and the backstop resync. With leader
// election enabled only the elected replica runs the monitor and its jobs.
type CronManager struct {
	cfg     *config.Config
	log     logger.Logger
	k8s     kubernetes.Interface
	monitor interfaces.MonitorService

	mu       sync.Mutex
	cron     *cronv3.Cron
	jobIDs   map[string]cronv3.EntryID
	stopCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, monitor interfaces.MonitorService) *CronManager {
	return &CronManager{
		cfg:     cfg,
		log:     log,
		k8s:     k8s,
		monitor: monitor,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
	}
}

// Start runs the scheduler locally, or behind a Kubernetes lease when leader
// election is enabled and a client is available. onLeading and onStopped are
// invoked when this replica gains or loses the right to monitor.
func (cm *CronManager) Start(onLeading func(ctx context.Context), onStopped func()) error {
	le := cm.cfg.LeaderElection
	if cm.k8s == nil || le == nil || !le.Enabled {
		cm.log.Info("Starting cron manager in local mode")
		if err := cm.StartCron(); err != nil {
			return err
		}
		if onLeading != nil {
			onLeading(context.Background())
		}
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      le.LeaseName,
			Namespace: le.Namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: le.PodName,
		},
	}

	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cm.mu.Lock()
	cm.cancel = cancel
	cm.mu.Unlock()

	go func() {
		elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.log.Infof("Pod %s acquired lease %s", le.PodName, le.LeaseName)
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Failed to start cron: %v", err)
					}
					if onLeading != nil {
						onLeading(ctx)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.stopCron()
					if onStopped != nil {
						onStopped()
					}
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}
		elector.Run(ctx)
	}()

	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		if err := cm.StartCron(); err != nil {
			return err
		}
		if onLeading != nil {
			onLeading(context.Background())
		}
	case <-time.After(leaderElectionGrace):
	}
	return nil
}

// Stop halts the scheduler and releases the lease. Safe to call more than once.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		cm.stopCron()
		cm.mu.Lock()
		if cm.cancel != nil {
			cm.cancel()
		}
		cm.mu.Unlock()
		close(cm.stopCh)
	})
}

func (cm *CronManager) stopCron() {
	cm.mu.Lock()
	c := cm.cron
	cm.cron = nil
	cm.mu.Unlock()

	if c != nil {
		cm.log.Info("Stopping cron manager")
		// wait for running jobs
		<-c.Stop().Done()
	}
}

// StartCron creates the scheduler, registers the jobs and starts it.
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()

	cm.mu.Lock()
	cm.cron = c
	cm.mu.Unlock()
	return nil
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	schedules := cm.cfg.Cron

	if schedules.CronScheduleHeartbeat != "" {
		podName := "local"
		if cm.cfg.LeaderElection != nil && cm.cfg.LeaderElection.PodName != "" {
			podName = cm.cfg.LeaderElection.PodName
		}
		id, err := c.AddFunc(schedules.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			stats := cm.monitor.Stats()
			cm.log.Infof("Cron heartbeat from pod: %s, monitoring active: %t, records: %d", podName, cm.monitor.Active(), stats.Total)
		})
		if err != nil {
			return err
		}
		cm.setJob(JobHeartbeat, id)
		cm.log.Infof("Registered heartbeat job with schedule: %s", schedules.CronScheduleHeartbeat)
	}

	if schedules.CronScheduleResync != "" {
		id, err := c.AddFunc(schedules.CronScheduleResync, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.requestResync()
		})
		if err != nil {
			return err
		}
		cm.setJob(JobResync, id)
		cm.log.Infof("Registered resync job with schedule: %s", schedules.CronScheduleResync)
	}
	return nil
}

func (cm *CronManager) setJob(name string, id cronv3.EntryID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.jobIDs[name] = id
}

func (cm *CronManager) requestResync() {
	span, _ := tracing.StartTracerSpan(context.Background(), "CronManager.requestResync")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if !cm.monitor.RequestResync("cron") {
		span.SetTag("skipped", true)
		cm.log.Debug("Monitoring inactive, skipping scheduled resync")
	}
}
