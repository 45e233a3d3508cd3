package app

import (
	"errors"
	"fmt"

	"github.com/joya-checkout/internal/config"
	"github.com/joya-checkout/internal/provider"
	"github.com/joya-checkout/internal/router"
	"github.com/joya-checkout/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, opts Options) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	opts = normalizeOptions(opts)
	if opts.Mode != ModeAll && opts.Mode != ModeAPI {
		return nil, nil, fmt.Errorf("unsupported mode: %s", opts.Mode)
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}

	var services []Service

	// 初始化 HTTP 服务
	engine := router.SetupRouter(cfg, container)
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	services = append(services, NewHTTPService(addr, engine))

	// 空闲会话清理
	services = append(services, NewSweeperService(container.CheckoutService, opts.SweepInterval))

	// 初始化锁单到期 Worker
	if opts.Mode == ModeAll && cfg.Queue.Enabled {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			_ = container.Close()
			return nil, nil, err
		}
		services = append(services, workerService)
	}

	return NewRunner(services...), container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			opts.Logger.Warnw("app_container_close_failed", "error", err)
		}
	}()

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode, "store_driver", opts.Config.Store.Driver, "queue_enabled", opts.Config.Queue.Enabled)
	return RunWithOptions(runner, opts)
}
