package initializer

import (
	"context"
	"strings"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gomodule/redigo/redis"

	"github.com/robocompute/go-robocompute/conf"
	"github.com/robocompute/go-robocompute/internal/api"
	"github.com/robocompute/go-robocompute/internal/archive"
	"github.com/robocompute/go-robocompute/internal/computing"
	"github.com/robocompute/go-robocompute/internal/notify"
	"github.com/robocompute/go-robocompute/internal/queue"
	"github.com/robocompute/go-robocompute/internal/ratelimit"
	"github.com/robocompute/go-robocompute/internal/store"
)

// Node is a fully wired marketplace server.
type Node struct {
	Config *conf.MarketNode
	Market *computing.Market
	Server *api.Server

	store    *store.Store
	pool     *redis.Pool
	hub      *computing.Hub
	notifier *notify.Redis
	inline   *queue.Inline
	celery   *queue.Celery
	cancel   context.CancelFunc
}

func MarketOptions(c *conf.MarketNode) computing.Options {
	return computing.Options{
		ProtocolFeeRate:  c.FeeRate(),
		SlashRate:        c.SlashRate(),
		MinimumStake:     c.MinimumStake(),
		StakeCurrency:    c.Market.StakeCurrency,
		PendingTTL:       time.Duration(c.Market.PendingTTLSeconds) * time.Second,
		HeartbeatTimeout: time.Duration(c.Market.HeartbeatTimeoutSeconds) * time.Second,
		MaxLogLines:      c.Market.MaxLogLines,
	}
}

// ProjectInit loads config.toml from repoPath and builds the node.
func ProjectInit(repoPath string) (*Node, error) {
	if err := conf.InitConfig(repoPath); err != nil {
		return nil, err
	}
	return NewNode(conf.GetConfig())
}

func NewNode(c *conf.MarketNode) (*Node, error) {
	s, err := store.Open(c.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	n := &Node{Config: c, store: s, hub: computing.NewHub()}
	if c.NeedsRedis() {
		n.pool = store.NewRedisPool(c.Redis.Url, c.Redis.Password)
	}

	var publisher computing.Publisher = n.hub
	if c.Notify.Backend == "redis" {
		dial := func() (redis.Conn, error) { return store.DialRedis(c.Redis.Url, c.Redis.Password, 0) }
		n.notifier = notify.NewRedis(n.pool, dial, n.hub)
		publisher = n.notifier
	}

	n.Market, err = computing.NewMarket(s, MarketOptions(c), publisher)
	if err != nil {
		n.Close()
		return nil, err
	}

	if c.MCS.Enable {
		a, err := archive.NewFromConfig(c.MCS)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.Market.SetArchiver(a)
	}

	if c.Queue.Backend == "celery" {
		n.celery, err = queue.NewCelery(n.pool, c.Queue.Workers, n.Market, nil)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.Market.SetDispatcher(n.celery)
	} else {
		n.inline = queue.NewInline(n.Market)
		n.Market.SetDispatcher(n.inline)
	}

	var limiter ratelimit.Limiter
	window := time.Duration(c.RateLimit.WindowSeconds) * time.Second
	if c.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedis(n.pool, c.RateLimit.Requests, window)
	} else {
		limiter = ratelimit.NewMemory(c.RateLimit.Requests, window)
	}

	n.Server = api.NewServer(n.Market, n.hub, limiter, api.Config{
		AdminToken:       c.Auth.AdminToken,
		RequireSignature: c.Auth.RequireSignature,
		TimestampSkew:    time.Duration(c.Auth.TimestampSkewSeconds) * time.Second,
		CorsOrigins:      strings.Join(c.API.CorsOrigins, ", "),
		Pprof:            c.API.Pprof,
	})
	return n, nil
}

// Start launches the background work: sweeps, the payout workers, the
// redis event fan-out, and redispatch of payouts left pending by a restart.
func (n *Node) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	go n.Market.RunSweeper(ctx, time.Duration(n.Config.Market.SweepIntervalSeconds)*time.Second)
	if n.notifier != nil {
		go n.notifier.Run(ctx)
	}
	if n.celery != nil {
		n.celery.Start()
	}

	pending := n.Market.PendingPayoutIds()
	for _, id := range pending {
		var err error
		if n.celery != nil {
			err = n.celery.Dispatch(id)
		} else {
			err = n.inline.Dispatch(id)
		}
		if err != nil {
			logs.GetLogger().Errorf("redispatch payout %s failed, error: %v", id, err)
		}
	}
	if len(pending) > 0 {
		logs.GetLogger().Infof("redispatched %d pending payout(s)", len(pending))
	}
}

func (n *Node) Stop(ctx context.Context) error {
	n.Close()
	return nil
}

func (n *Node) Close() {
	if n.cancel != nil {
		n.cancel()
	}
	if n.celery != nil {
		n.celery.Stop()
	}
	if n.inline != nil {
		n.inline.Wait()
	}
	if n.pool != nil {
		if err := n.pool.Close(); err != nil {
			logs.GetLogger().Errorf("close redis pool failed, error: %v", err)
		}
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			logs.GetLogger().Errorf("close store failed, error: %v", err)
		}
	}
}
