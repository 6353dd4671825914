// Package config loads the orchestrator configuration.
//
// Configuration lives in a single directory containing config.yaml. The default
// directory is ~/.config/surogate; commands accept --config-path to override it.
// Values are applied over GetDefaultConfig, environment variables are expanded,
// and the result is validated before use.
//
// # Example
//
//	zones:
//	  - id: eu-west
//	    clusters:
//	      - id: gpu-a
//	        kubeconfig: /etc/surogate/gpu-a.kubeconfig
//	        prometheusURL: http://prometheus.gpu-a:9090
//	        jobRuntime: true
//	      - id: gpu-b          # no credentials: skipped at startup
//	tasks:
//	  pollInterval: 2s
//	  pollTimeout: 5m
//	database:
//	  dsn: ${DATABASE_URL}
package config
