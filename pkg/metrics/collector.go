package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ServiceSample is one virtual service row of a stats listing, flattened for
// export.
type ServiceSample struct {
	Service     string
	Connections uint64
	InBytes     uint64
	OutBytes    uint64
	Servers     []ServerSample
}

// ServerSample is one real server row under a ServiceSample.
type ServerSample struct {
	Server      string
	Connections uint64
}

// StatsSource supplies the pools to sample and their table statistics.
type StatsSource interface {
	PoolIDs(ctx context.Context) ([]string, error)
	ServiceSamples(ctx context.Context, poolID string) ([]ServiceSample, error)
}

// TableCollector periodically copies table statistics into the table gauges
type TableCollector struct {
	source   StatsSource
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewTableCollector creates a new table statistics collector
func NewTableCollector(source StatsSource, interval time.Duration, logger zerolog.Logger) *TableCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &TableCollector{
		source:   source,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *TableCollector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect(context.Background())

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *TableCollector) Stop() {
	close(c.stopCh)
}

// Collect samples every pool once. Pools whose table cannot be read are
// skipped and keep their previous values.
func (c *TableCollector) Collect(ctx context.Context) {
	poolIDs, err := c.source.PoolIDs(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("listing pools for table stats")
		return
	}

	deployed := 0
	for _, poolID := range poolIDs {
		samples, err := c.source.ServiceSamples(ctx, poolID)
		if err != nil {
			c.logger.Debug().Err(err).Str("pool_id", poolID).Msg("reading table stats")
			continue
		}
		deployed++

		ServiceConnections.DeletePartialMatch(map[string]string{"pool_id": poolID})
		ServiceBytes.DeletePartialMatch(map[string]string{"pool_id": poolID})
		RealServerConnections.DeletePartialMatch(map[string]string{"pool_id": poolID})

		for _, svc := range samples {
			ServiceConnections.WithLabelValues(poolID, svc.Service).Set(float64(svc.Connections))
			ServiceBytes.WithLabelValues(poolID, svc.Service, "in").Set(float64(svc.InBytes))
			ServiceBytes.WithLabelValues(poolID, svc.Service, "out").Set(float64(svc.OutBytes))
			for _, srv := range svc.Servers {
				RealServerConnections.WithLabelValues(poolID, svc.Service, srv.Server).Set(float64(srv.Connections))
			}
		}
	}

	c.logger.Debug().Int("pools", len(poolIDs)).Int("sampled", deployed).Msg("collected table stats")
}
