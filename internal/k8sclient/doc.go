// Package k8sclient is the gateway to a Kubernetes API server. It wraps
// k8s.io/client-go to create rendered manifests idempotently, to read custom
// resources by group/version/resource and to ensure the handful of core and
// RBAC objects the provisioners depend on, directly from kubeconfig bytes.
package k8sclient
