package remotewrite

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/nodeboss/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Start pushes the default registry on an interval while the app runs.
func Start(lc fx.Lifecycle, cfg config.Config, pusher Pusher, log *zap.Logger) {
	if pusher == nil {
		return
	}
	interval := cfg.MetricsPushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log = log.Named("metrics.push")

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						pushCtx, pushCancel := context.WithTimeout(ctx, defaultPushTimeout)
						if err := pusher.Push(pushCtx, prometheus.DefaultGatherer); err != nil {
							log.Warn("metrics push failed", zap.Error(err))
						}
						pushCancel()
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
