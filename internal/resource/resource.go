// Package resource defines the identifiers shared by the orchestration packages:
// resource kinds and the placement of a resource on a cluster.
package resource

import "fmt"

// Kind is the type of an orchestrated resource.
type Kind string

const (
	KindApplication    Kind = "application"
	KindCompositeModel Kind = "model"
	KindDatabase       Kind = "database"
	KindTrainingJob    Kind = "training-job"
	KindTaskRun        Kind = "task-run"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindApplication, KindCompositeModel, KindDatabase, KindTrainingJob, KindTaskRun}

// ParseKind validates a kind coming from outside.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Placement records where a resource was deployed.
type Placement struct {
	Zone      string `json:"zone"`
	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
}

// IsZero reports whether no cluster was assigned.
func (p Placement) IsZero() bool {
	return p.Zone == "" || p.Cluster == ""
}

func (p Placement) String() string {
	return p.Zone + "/" + p.Cluster + "/" + p.Namespace
}
