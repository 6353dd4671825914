package config

import (
	"fmt"
	"strings"
)

// Validate checks structural consistency. Clusters without credentials are not an error:
// they are skipped at startup with a warning.
func (c Config) Validate() error {
	var errs ValidationErrors

	zones := make(map[string]bool)
	for i, zone := range c.Zones {
		field := fmt.Sprintf("zones[%d]", i)
		if strings.TrimSpace(zone.ID) == "" {
			errs.Add(field+".id", "is required")
			continue
		}
		if zones[zone.ID] {
			errs.Add(field+".id", "duplicate zone id", zone.ID)
		}
		zones[zone.ID] = true

		clusters := make(map[string]bool)
		for j, cl := range zone.Clusters {
			cfield := fmt.Sprintf("%s.clusters[%d]", field, j)
			if strings.TrimSpace(cl.ID) == "" {
				errs.Add(cfield+".id", "is required")
				continue
			}
			if clusters[cl.ID] {
				errs.Add(cfield+".id", "duplicate cluster id in zone "+zone.ID, cl.ID)
			}
			clusters[cl.ID] = true
			if cl.Kubeconfig != "" && cl.KubeconfigData != "" {
				errs.Add(cfield, "kubeconfig and kubeconfigData are mutually exclusive")
			}
		}
	}

	t := c.Tasks
	if t.PollInterval <= 0 {
		errs.Add("tasks.pollInterval", "must be positive", t.PollInterval)
	}
	if t.PollTimeout < t.PollInterval {
		errs.Add("tasks.pollTimeout", "must not be shorter than pollInterval", t.PollTimeout)
	}
	if t.Workers <= 0 {
		errs.Add("tasks.workers", "must be positive", t.Workers)
	}
	if t.RequestCoefficient <= 0 || t.RequestCoefficient > 1 {
		errs.Add("tasks.requestCoefficient", "must be in (0, 1]", t.RequestCoefficient)
	}
	if t.LimitCoefficient < 1 {
		errs.Add("tasks.limitCoefficient", "must be at least 1", t.LimitCoefficient)
	}

	r := c.Reconcile
	if r.TickInterval <= 0 {
		errs.Add("reconcile.tickInterval", "must be positive", r.TickInterval)
	}
	if r.TickTimeout <= 0 {
		errs.Add("reconcile.tickTimeout", "must be positive", r.TickTimeout)
	}
	if r.FanOutLimit <= 0 {
		errs.Add("reconcile.fanOutLimit", "must be positive", r.FanOutLimit)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
