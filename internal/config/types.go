package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for the orchestrator.
type Config struct {
	LogLevel  string `yaml:"logLevel,omitempty"`
	LogFormat string `yaml:"logFormat,omitempty"`

	Zones     []ZoneConfig    `yaml:"zones"`
	Tasks     TaskConfig      `yaml:"tasks"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	NodeWatch NodeWatchConfig `yaml:"nodeWatch"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
}

// ZoneConfig groups the clusters of one zone.
type ZoneConfig struct {
	ID       string          `yaml:"id"`
	Clusters []ClusterConfig `yaml:"clusters"`
}

// ClusterConfig describes how to reach one compute cluster.
//
// Credentials come from exactly one of: a kubeconfig file path, inline kubeconfig data,
// or a server URL with a bearer token.
type ClusterConfig struct {
	ID string `yaml:"id"`

	Kubeconfig     string `yaml:"kubeconfig,omitempty"`
	KubeconfigData string `yaml:"kubeconfigData,omitempty"`
	Context        string `yaml:"context,omitempty"`

	Server   string `yaml:"server,omitempty"`
	Token    string `yaml:"token,omitempty"`
	CAData   string `yaml:"caData,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`

	QPS   float32 `yaml:"qps,omitempty"`
	Burst int     `yaml:"burst,omitempty"`

	PrometheusURL string `yaml:"prometheusURL,omitempty"`

	// JobRuntime enables the dynamic client used for CRD based job runtimes.
	JobRuntime    bool   `yaml:"jobRuntime,omitempty"`
	JobMetricsURL string `yaml:"jobMetricsURL,omitempty"`
}

// HasCredentials reports whether enough connection data is present to build a client.
func (c ClusterConfig) HasCredentials() bool {
	if c.Kubeconfig != "" || c.KubeconfigData != "" {
		return true
	}
	return c.Server != "" && c.Token != ""
}

// TaskConfig is shared by every mutating task.
type TaskConfig struct {
	PollInterval Duration `yaml:"pollInterval"`
	PollTimeout  Duration `yaml:"pollTimeout"`
	WatchTimeout Duration `yaml:"watchTimeout"`

	// RequestCoefficient derives missing requests from limits (request = limit * coefficient).
	RequestCoefficient float64 `yaml:"requestCoefficient"`
	// LimitCoefficient derives missing limits from requests (limit = request * coefficient).
	LimitCoefficient float64 `yaml:"limitCoefficient"`

	CleanupOnTerminate bool `yaml:"cleanupOnTerminate"`
	Workers            int  `yaml:"workers"`
}

// ReconcileConfig configures the polling reconciliation streams.
type ReconcileConfig struct {
	TickInterval  Duration `yaml:"tickInterval"`
	TickTimeout   Duration `yaml:"tickTimeout"`
	EnrichTimeout Duration `yaml:"enrichTimeout"`
	FanOutLimit   int      `yaml:"fanOutLimit"`
	StreamTimeout Duration `yaml:"streamTimeout"`
	IdleTimeout   Duration `yaml:"idleTimeout"`
	LogTailLines  int64    `yaml:"logTailLines"`
	// RecordEvents writes lifecycle transitions as Kubernetes Events on the resource's cluster.
	RecordEvents bool `yaml:"recordEvents"`
}

// NodeWatchConfig configures the node change feed.
type NodeWatchConfig struct {
	Enabled       bool     `yaml:"enabled"`
	ResyncPeriod  Duration `yaml:"resyncPeriod"`
	IgnoreUpdates bool     `yaml:"ignoreUpdates"`
}

// DatabaseConfig points at the postgres database holding lifecycle state.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn,omitempty"`
	MaxConns int32  `yaml:"maxConns,omitempty"`
}

// RedisConfig configures the optional event publisher.
type RedisConfig struct {
	Addr          string `yaml:"addr,omitempty"`
	Password      string `yaml:"password,omitempty"`
	DB            int    `yaml:"db,omitempty"`
	ChannelPrefix string `yaml:"channelPrefix,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Duration is a time.Duration that unmarshals from YAML strings such as "5s".
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string or an integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
