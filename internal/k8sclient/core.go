package k8sclient

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// EnsureNamespace creates a namespace, accepting one that already exists.
func (c *client) EnsureNamespace(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("namespace name is required")
	}
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	_, err := c.clientset.CoreV1().Namespaces().Create(ctx, ns, createOptions)
	if err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	return nil
}

// EnsureServiceAccount creates a service account, accepting one that already
// exists, and reads it back so the caller gets its UID.
func (c *client) EnsureServiceAccount(ctx context.Context, namespace, name string) (*corev1.ServiceAccount, error) {
	if namespace == "" || name == "" {
		return nil, fmt.Errorf("service account namespace and name are required")
	}
	sas := c.clientset.CoreV1().ServiceAccounts(namespace)
	sa := &corev1.ServiceAccount{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace}}
	if _, err := sas.Create(ctx, sa, createOptions); err != nil && !IsAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create service account %s/%s: %w", namespace, name, err)
	}

	stored, err := sas.Get(ctx, name, getOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to get service account %s/%s: %w", namespace, name, err)
	}
	return stored, nil
}

// EnsureClusterRoleBinding grants a ClusterRole to a service account within a
// single namespace.
func (c *client) EnsureClusterRoleBinding(ctx context.Context, namespace, name, clusterRole, serviceAccount string) error {
	binding := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "ClusterRole",
			Name:     clusterRole,
		},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      serviceAccount,
			Namespace: namespace,
		}},
	}
	_, err := c.clientset.RbacV1().RoleBindings(namespace).Create(ctx, binding, createOptions)
	if err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("failed to create role binding %s/%s: %w", namespace, name, err)
	}
	return nil
}

// EnsureServiceAccountToken creates a legacy service-account token secret.
// The token controller fills in the token and CA certificate.
func (c *client) EnsureServiceAccountToken(ctx context.Context, name string, sa *corev1.ServiceAccount) error {
	if sa == nil {
		return fmt.Errorf("service account is required")
	}
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: sa.Namespace,
			Annotations: map[string]string{
				corev1.ServiceAccountNameKey: sa.Name,
				corev1.ServiceAccountUIDKey:  string(sa.UID),
			},
			OwnerReferences: []metav1.OwnerReference{{
				APIVersion: "v1",
				Kind:       "ServiceAccount",
				Name:       sa.Name,
				UID:        sa.UID,
				Controller: ptr.To(false),
			}},
		},
		Type: corev1.SecretTypeServiceAccountToken,
	}
	_, err := c.clientset.CoreV1().Secrets(sa.Namespace).Create(ctx, secret, createOptions)
	if err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("failed to create token secret %s/%s: %w", sa.Namespace, name, err)
	}
	return nil
}

// GetSecret reads a secret.
func (c *client) GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error) {
	secret, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, getOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}
	return secret, nil
}

// GetConfigMap reads a config map.
func (c *client) GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error) {
	cm, err := c.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, getOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to get config map %s/%s: %w", namespace, name, err)
	}
	return cm, nil
}
