package cluster

import (
	"fmt"

	"github.com/fabricpilot/vanctl/internal/config"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
)

// NewFromConfig resolves a rest.Config the same way controller-runtime's
// manager does -- an explicit kubeconfig if cfg.Kubeconfig is set, the
// default local kubeconfig loading rules (KUBECONFIG, then ~/.kube/config)
// if cfg.StandaloneNamespace is set, otherwise in-cluster/env discovery via
// ctrl.GetConfig -- and builds the
// real Collaborator from it. Shared by cmd/vanctl-controller and cmd/vanctl
// so both talk to the cluster the same way. Returns the namespace the
// collaborator and every caller should operate against (cfg's
// StandaloneNamespace override takes priority).
func NewFromConfig(cfg config.ClusterConfig) (Collaborator, string, error) {
	namespace := cfg.Namespace
	if cfg.StandaloneNamespace != "" {
		namespace = cfg.StandaloneNamespace
	}

	var restCfg *rest.Config
	var err error
	if cfg.Kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else if cfg.StandaloneNamespace != "" {
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			clientcmd.NewDefaultClientConfigLoadingRules(), &clientcmd.ConfigOverrides{}).ClientConfig()
	} else {
		restCfg, err = ctrl.GetConfig()
	}
	if err != nil {
		return nil, "", fmt.Errorf("resolving kubernetes config: %w", err)
	}

	coll, err := NewK8sCollaborator(restCfg)
	if err != nil {
		return nil, "", err
	}
	return coll, namespace, nil
}
