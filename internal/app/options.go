package app

import (
	"os"
	"time"

	"github.com/joya-checkout/internal/config"
	"github.com/joya-checkout/internal/logger"

	"go.uber.org/zap"
)

const (
	// ModeAll HTTP + 锁单到期 worker（会话在进程内，worker 必须与 HTTP 同进程）
	ModeAll = "all"
	// ModeAPI 仅 HTTP，锁单到期由客户端重试时的服务端错误兜底
	ModeAPI = "api"
)

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	SweepInterval   time.Duration
	Mode            string
}

// normalizeOptions 补齐默认参数
func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	return opts
}
