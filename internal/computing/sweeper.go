package computing

import (
	"context"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/robocompute/go-robocompute/internal/metrics"
	"github.com/robocompute/go-robocompute/internal/models"
)

type SweepReport struct {
	TimedOut         []string
	Expired          []string
	ProvidersOffline []string
}

// Sweep times out overrunning tasks, cancels stale pending tasks and marks
// silent providers offline. Each change commits on its own.
func (m *Market) Sweep() SweepReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report SweepReport
	now := m.now()
	for id, t := range m.tasks {
		timeout := time.Duration(t.TimeoutSeconds) * time.Second
		switch {
		case t.Status == models.TaskRunning && t.StartedAt != nil && now.After(t.StartedAt.Add(timeout)),
			t.Status == models.TaskAccepted && t.AcceptedAt != nil && now.After(t.AcceptedAt.Add(timeout)):
			tx := m.begin()
			staged, _ := tx.task(id)
			m.faultTask(tx, staged, models.TaskTimeout, "TIMEOUT", "task exceeded timeout_seconds")
			if err := tx.commit(); err != nil {
				logs.GetLogger().Errorf("timeout task %s failed, error: %+v", id, err)
				continue
			}
			metrics.TasksFinished.WithLabelValues(string(models.TaskTimeout)).Inc()
			report.TimedOut = append(report.TimedOut, id)
		case t.Status == models.TaskPending && m.opts.PendingTTL > 0 && now.Sub(t.CreatedAt) > m.opts.PendingTTL:
			tx := m.begin()
			staged, _ := tx.task(id)
			m.refundTask(tx, staged, models.TaskCancelled, "no provider accepted the task in time")
			if err := tx.commit(); err != nil {
				logs.GetLogger().Errorf("expire task %s failed, error: %+v", id, err)
				continue
			}
			metrics.TasksFinished.WithLabelValues(string(models.TaskCancelled)).Inc()
			report.Expired = append(report.Expired, id)
		}
	}

	if m.opts.HeartbeatTimeout > 0 {
		for id, p := range m.providers {
			if p.Status != models.ProviderOnline || now.Sub(p.LastHeartbeat) <= m.opts.HeartbeatTimeout {
				continue
			}
			tx := m.begin()
			staged, _ := tx.provider(id)
			staged.Status = models.ProviderOffline
			m.setIdleResources(tx, id, false)
			if err := tx.commit(); err != nil {
				logs.GetLogger().Errorf("mark provider %s offline failed, error: %+v", id, err)
				continue
			}
			report.ProvidersOffline = append(report.ProvidersOffline, id)
		}
	}

	if n := len(report.TimedOut) + len(report.Expired) + len(report.ProvidersOffline); n > 0 {
		logs.GetLogger().Infof("<timer-task> timed out: %d, expired: %d, providers offline: %d",
			len(report.TimedOut), len(report.Expired), len(report.ProvidersOffline))
	}
	return report
}

func (m *Market) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if err := recover(); err != nil {
						logs.GetLogger().Errorf("catch panic error: %+v", err)
					}
				}()
				m.Sweep()
			}()
		}
	}
}
