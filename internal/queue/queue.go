package queue

import (
	"fmt"
	"sync"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gocelery/gocelery"
	"github.com/gomodule/redigo/redis"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
)

// Processor settles a pending payout. transferErr reports the outcome of the
// transfer to the provider wallet.
type Processor interface {
	ProcessPayout(payoutId string, transferErr error) (*models.Payout, error)
}

// Transfer moves the payout funds. A nil Transfer settles by local reference.
type Transfer func(payoutId string) error

func process(proc Processor, transfer Transfer, payoutId string) (*models.Payout, error) {
	var transferErr error
	if transfer != nil {
		transferErr = transfer(payoutId)
	}
	p, err := proc.ProcessPayout(payoutId, transferErr)
	if err != nil {
		logs.GetLogger().Errorf("process payout %s failed, error: %+v", payoutId, err)
		return nil, err
	}
	logs.GetLogger().Infof("payout %s %s", p.Id, p.Status)
	return p, nil
}

// Inline settles payouts on a goroutine of the server process.
type Inline struct {
	proc     Processor
	Transfer Transfer
	wg       sync.WaitGroup
}

func NewInline(proc Processor) *Inline {
	return &Inline{proc: proc}
}

func (d *Inline) Dispatch(payoutId string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		process(d.proc, d.Transfer, payoutId)
	}()
	return nil
}

// Wait blocks until every dispatched payout is processed.
func (d *Inline) Wait() {
	d.wg.Wait()
}

// Celery queues payout ids on redis and settles them on gocelery workers.
type Celery struct {
	cli *gocelery.CeleryClient
}

func NewCelery(pool *redis.Pool, workers int, proc Processor, transfer Transfer) (*Celery, error) {
	if workers <= 0 {
		workers = 1
	}
	cli, err := gocelery.NewCeleryClient(
		gocelery.NewRedisBroker(pool),
		gocelery.NewRedisBackend(pool),
		workers)
	if err != nil {
		return nil, fmt.Errorf("init celery client: %w", err)
	}
	cli.Register(constants.TASK_PAYOUT, func(payoutId string) string {
		p, err := process(proc, transfer, payoutId)
		if err != nil {
			return err.Error()
		}
		return string(p.Status)
	})
	return &Celery{cli: cli}, nil
}

func (d *Celery) Dispatch(payoutId string) error {
	_, err := d.cli.Delay(constants.TASK_PAYOUT, payoutId)
	return err
}

func (d *Celery) Start() {
	d.cli.StartWorker()
}

func (d *Celery) Stop() {
	d.cli.StopWorker()
}
