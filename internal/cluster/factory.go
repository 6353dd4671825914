package cluster

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/metricsquery"
)

// Factory builds a Bundle from cluster configuration.
type Factory interface {
	NewBundle(zone string, cfg config.ClusterConfig) (*Bundle, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(zone string, cfg config.ClusterConfig) (*Bundle, error)

// NewBundle implements Factory.
func (f FactoryFunc) NewBundle(zone string, cfg config.ClusterConfig) (*Bundle, error) {
	return f(zone, cfg)
}

// RESTFactory builds real clients from kubeconfig or token credentials.
type RESTFactory struct {
	scheme *runtime.Scheme
}

// NewRESTFactory creates a factory registering the standard Kubernetes types.
func NewRESTFactory() *RESTFactory {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	return &RESTFactory{scheme: scheme}
}

// NewBundle implements Factory.
func (f *RESTFactory) NewBundle(zone string, cfg config.ClusterConfig) (*Bundle, error) {
	if !cfg.HasCredentials() {
		return nil, ErrMissingCredentials
	}

	restConfig, err := RESTConfig(cfg)
	if err != nil {
		return nil, err
	}

	kube, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	c, err := client.New(restConfig, client.Options{Scheme: f.scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller-runtime client: %w", err)
	}

	clients := Clients{Kube: kube, Client: c}

	if cfg.PrometheusURL != "" {
		q, err := metricsquery.NewClient(cfg.PrometheusURL)
		if err != nil {
			return nil, err
		}
		clients.Metrics = q
	}
	if cfg.JobRuntime {
		dyn, err := dynamic.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create job runtime client: %w", err)
		}
		clients.JobRuntime = dyn
	}
	if cfg.JobMetricsURL != "" {
		q, err := metricsquery.NewClient(cfg.JobMetricsURL)
		if err != nil {
			return nil, err
		}
		clients.JobMetrics = q
	}

	return NewBundle(zone, cfg.ID, clients), nil
}

// RESTConfig turns cluster credentials into a client-go REST configuration.
func RESTConfig(cfg config.ClusterConfig) (*rest.Config, error) {
	var (
		restConfig *rest.Config
		err        error
	)
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}

	switch {
	case cfg.Kubeconfig != "":
		rules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: cfg.Kubeconfig}
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %w", cfg.Kubeconfig, err)
		}
	case cfg.KubeconfigData != "":
		apiConfig, loadErr := clientcmd.Load([]byte(cfg.KubeconfigData))
		if loadErr != nil {
			return nil, fmt.Errorf("failed to parse inline kubeconfig: %w", loadErr)
		}
		restConfig, err = clientcmd.NewNonInteractiveClientConfig(*apiConfig, cfg.Context, overrides, nil).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build config from inline kubeconfig: %w", err)
		}
	case cfg.Server != "" && cfg.Token != "":
		restConfig = &rest.Config{
			Host:            cfg.Server,
			BearerToken:     cfg.Token,
			TLSClientConfig: rest.TLSClientConfig{Insecure: cfg.Insecure},
		}
		if cfg.CAData != "" && !cfg.Insecure {
			restConfig.TLSClientConfig.CAData = []byte(cfg.CAData)
		}
	default:
		return nil, ErrMissingCredentials
	}

	if cfg.QPS > 0 {
		restConfig.QPS = cfg.QPS
	}
	if cfg.Burst > 0 {
		restConfig.Burst = cfg.Burst
	}
	restConfig.UserAgent = "surogate-orchestrator/" + cfg.ID
	return restConfig, nil
}
