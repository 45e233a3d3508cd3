package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/joya-checkout/internal/cache"
	"github.com/joya-checkout/internal/cart"
	"github.com/joya-checkout/internal/config"
	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/models"
	"github.com/joya-checkout/internal/queue"
	"github.com/joya-checkout/internal/repository"
	"github.com/joya-checkout/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// Repositories
	SnapshotStore cart.SnapshotStore

	// Services
	CheckoutService *service.CheckoutService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue, cfg.Order.PaymentExpire())
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化快照存储
	if err := c.initRepositories(); err != nil {
		return nil, err
	}

	// 2. 初始化 Services
	c.initServices()

	return c, nil
}

func (c *Container) initRepositories() error {
	driver := c.Config.Store.Driver
	switch driver {
	case constants.StoreDriverMemory:
		c.SnapshotStore = cart.NewMemorySnapshotStore()
	case constants.StoreDriverRedis:
		store, err := cache.NewSnapshotStore(cache.Client(), c.Config.Redis.Prefix, time.Duration(c.Config.Redis.TTLHours)*time.Hour)
		if err != nil {
			return fmt.Errorf("init redis snapshot store failed: %w", err)
		}
		c.SnapshotStore = store
	case "", constants.StoreDriverSQLite, constants.StoreDriverPostgres:
		db, err := models.OpenDB(driver, c.Config.Store.DSN)
		if err != nil {
			return fmt.Errorf("open snapshot database failed: %w", err)
		}
		if err := models.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate snapshot database failed: %w", err)
		}
		c.DB = db
		c.SnapshotStore = repository.NewCartSnapshotRepository(db)
	default:
		return fmt.Errorf("unsupported store driver: %s", driver)
	}
	logger.Infow("provider_snapshot_store_ready", "driver", driver)
	return nil
}

func (c *Container) initServices() {
	opts := service.CheckoutServiceOptions{
		Config:    c.Config,
		Snapshots: c.SnapshotStore,
	}
	if c.QueueClient != nil && c.QueueClient.Enabled() {
		opts.LockExpiry = c.QueueClient
	}
	c.CheckoutService = service.NewCheckoutService(opts)
}

// Close 释放容器持有的资源
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.CheckoutService != nil {
		c.CheckoutService.Close()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := cache.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
