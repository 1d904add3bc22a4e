package harvester

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/prh-io/prh/internal/util/naming"
)

// CloudConfigClient is the Harvester API surface StorageCloudConfig needs.
type CloudConfigClient interface {
	EnsureNamespace(ctx context.Context, name string) error
	EnsureServiceAccount(ctx context.Context, namespace, name string) (*corev1.ServiceAccount, error)
	EnsureClusterRoleBinding(ctx context.Context, namespace, name, clusterRole, serviceAccount string) error
	EnsureServiceAccountToken(ctx context.Context, name string, sa *corev1.ServiceAccount) error
	GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error)
	GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error)
}

// CloudConfigParams identifies the objects a storage cloud-config is built from.
type CloudConfigParams struct {
	// Namespace holds the VMs; the service account is created there.
	Namespace string

	// ClusterName is the downstream cluster. It also names the service account.
	ClusterName string

	// ClusterRole is bound to the service account within Namespace.
	ClusterRole string

	// VIPNamespace and VIPConfigMap locate the config map whose "ip" key is
	// the Harvester virtual IP.
	VIPNamespace string
	VIPConfigMap string

	// TokenInterval and TokenTimeout bound the wait for the token controller
	// to populate the token secret.
	TokenInterval time.Duration
	TokenTimeout  time.Duration
}

const (
	defaultTokenInterval = time.Second
	defaultTokenTimeout  = 30 * time.Second
)

// StorageCloudConfig prepares a service account on Harvester for the
// downstream cluster's storage and cloud provider and returns a kubeconfig
// that authenticates as it.
//
// Objects that already exist are reused. Any other failure is returned
// immediately, so a kubeconfig is only produced when every step succeeded.
func StorageCloudConfig(ctx context.Context, c CloudConfigClient, p CloudConfigParams) (string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("namespace", p.Namespace, "serviceAccount", p.ClusterName)
	if p.Namespace == "" || p.ClusterName == "" {
		return "", fmt.Errorf("namespace and cluster name are required for the storage cloud-config")
	}
	serviceAccount := p.ClusterName

	if err := c.EnsureNamespace(ctx, p.Namespace); err != nil {
		return "", err
	}
	sa, err := c.EnsureServiceAccount(ctx, p.Namespace, serviceAccount)
	if err != nil {
		return "", err
	}
	binding := naming.CloudProviderRoleBinding(p.Namespace, serviceAccount)
	if err := c.EnsureClusterRoleBinding(ctx, p.Namespace, binding, p.ClusterRole, serviceAccount); err != nil {
		return "", err
	}
	tokenName := naming.ServiceAccountToken(serviceAccount)
	if err := c.EnsureServiceAccountToken(ctx, tokenName, sa); err != nil {
		return "", err
	}
	log.V(1).Info("service account ready", "roleBinding", binding, "tokenSecret", tokenName)

	secret, err := waitForToken(ctx, c, p, tokenName)
	if err != nil {
		return "", err
	}

	vip, err := c.GetConfigMap(ctx, p.VIPNamespace, p.VIPConfigMap)
	if err != nil {
		return "", err
	}
	ip := vip.Data["ip"]
	if ip == "" {
		return "", fmt.Errorf("config map %s/%s has no ip", p.VIPNamespace, p.VIPConfigMap)
	}

	kubeconfig := BuildKubeconfig(KubeconfigParams{
		Namespace: p.Namespace,
		Cluster:   p.ClusterName,
		Context:   naming.KubeconfigContext(serviceAccount, p.Namespace, p.ClusterName),
		Endpoint:  naming.VIPEndpoint(ip),
		CAData:    secret.Data[corev1.ServiceAccountRootCAKey],
		Token:     string(secret.Data[corev1.ServiceAccountTokenKey]),
	})
	out, err := clientcmd.Write(*kubeconfig)
	if err != nil {
		return "", fmt.Errorf("failed to serialize storage cloud-config: %w", err)
	}
	return string(out), nil
}

// waitForToken waits until the token controller has filled in the token
// secret.
func waitForToken(ctx context.Context, c CloudConfigClient, p CloudConfigParams, name string) (*corev1.Secret, error) {
	interval, timeout := p.TokenInterval, p.TokenTimeout
	if interval <= 0 {
		interval = defaultTokenInterval
	}
	if timeout <= 0 {
		timeout = defaultTokenTimeout
	}

	var secret *corev1.Secret
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		s, err := c.GetSecret(ctx, p.Namespace, name)
		if err != nil {
			return false, err
		}
		if len(s.Data[corev1.ServiceAccountTokenKey]) == 0 {
			return false, nil
		}
		secret = s
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token secret %s/%s was not populated: %w", p.Namespace, name, err)
	}
	return secret, nil
}

// KubeconfigParams describes a single-context token kubeconfig.
type KubeconfigParams struct {
	Namespace string
	Cluster   string
	// Context names both the context and its user.
	Context  string
	Endpoint string
	CAData   []byte
	Token    string
}

// BuildKubeconfig returns a kubeconfig with one cluster, user and context,
// the context pinned to p.Namespace.
func BuildKubeconfig(p KubeconfigParams) *clientcmdapi.Config {
	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[p.Cluster] = &clientcmdapi.Cluster{
		Server:                   p.Endpoint,
		CertificateAuthorityData: p.CAData,
	}
	cfg.AuthInfos[p.Context] = &clientcmdapi.AuthInfo{Token: p.Token}
	cfg.Contexts[p.Context] = &clientcmdapi.Context{
		Cluster:   p.Cluster,
		AuthInfo:  p.Context,
		Namespace: p.Namespace,
	}
	cfg.CurrentContext = p.Context
	return cfg
}
