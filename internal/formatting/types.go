package formatting

// ClusterRow is the probe result of one configured cluster.
type ClusterRow struct {
	Zone       string `json:"zone" yaml:"zone"`
	Cluster    string `json:"cluster" yaml:"cluster"`
	Registered bool   `json:"registered" yaml:"registered"`
	// Version is empty when the API server could not be reached.
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Metrics    bool   `json:"metrics" yaml:"metrics"`
	JobRuntime bool   `json:"jobRuntime" yaml:"jobRuntime"`
}

// ClusterReport is the output of the clusters command.
type ClusterReport struct {
	Clusters   []ClusterRow `json:"clusters" yaml:"clusters"`
	Registered int          `json:"registered" yaml:"registered"`
	Total      int          `json:"total" yaml:"total"`
}
