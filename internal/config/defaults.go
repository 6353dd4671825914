package config

import "time"

const (
	DefaultPollInterval  = 2 * time.Second
	DefaultPollTimeout   = 5 * time.Minute
	DefaultWatchTimeout  = 10 * time.Minute
	DefaultWorkers       = 16
	DefaultTickInterval  = 5 * time.Second
	DefaultTickTimeout   = 10 * time.Second
	DefaultEnrichTimeout = 3 * time.Second
	DefaultFanOutLimit   = 8
	DefaultStreamTimeout = 30 * time.Minute
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultLogTailLines  = 20
	DefaultResyncPeriod  = 10 * time.Minute
	DefaultServerAddr    = ":8080"
	DefaultRedisPrefix   = "surogate:events:"
)

// GetDefaultConfig returns the configuration used before config.yaml is applied.
func GetDefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Tasks: TaskConfig{
			PollInterval:       Duration(DefaultPollInterval),
			PollTimeout:        Duration(DefaultPollTimeout),
			WatchTimeout:       Duration(DefaultWatchTimeout),
			RequestCoefficient: 1.0,
			LimitCoefficient:   1.0,
			CleanupOnTerminate: true,
			Workers:            DefaultWorkers,
		},
		Reconcile: ReconcileConfig{
			TickInterval:  Duration(DefaultTickInterval),
			TickTimeout:   Duration(DefaultTickTimeout),
			EnrichTimeout: Duration(DefaultEnrichTimeout),
			FanOutLimit:   DefaultFanOutLimit,
			StreamTimeout: Duration(DefaultStreamTimeout),
			IdleTimeout:   Duration(DefaultIdleTimeout),
			LogTailLines:  DefaultLogTailLines,
			RecordEvents:  true,
		},
		NodeWatch: NodeWatchConfig{
			Enabled:      true,
			ResyncPeriod: Duration(DefaultResyncPeriod),
		},
		Redis: RedisConfig{
			ChannelPrefix: DefaultRedisPrefix,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}
