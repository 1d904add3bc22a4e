package k8sclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

func TestEnsureNamespace_Idempotent(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.EnsureNamespace(ctx, "vms"))
	require.NoError(t, c.EnsureNamespace(ctx, "vms"))

	_, err := c.clientset.CoreV1().Namespaces().Get(ctx, "vms", metav1.GetOptions{})
	require.NoError(t, err)

	require.Error(t, c.EnsureNamespace(ctx, ""))
}

func TestEnsureServiceAccount_ReturnsStored(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	sa, err := c.EnsureServiceAccount(ctx, "vms", "downstream")
	require.NoError(t, err)
	assert.Equal(t, "downstream", sa.Name)

	again, err := c.EnsureServiceAccount(ctx, "vms", "downstream")
	require.NoError(t, err)
	assert.Equal(t, sa.Name, again.Name)
}

func TestEnsureClusterRoleBinding(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	err := c.EnsureClusterRoleBinding(ctx, "vms", "vms-downstream", "harvesterhci.io:cloudprovider", "downstream")
	require.NoError(t, err)
	require.NoError(t, c.EnsureClusterRoleBinding(ctx, "vms", "vms-downstream", "harvesterhci.io:cloudprovider", "downstream"))

	rb, err := c.clientset.RbacV1().RoleBindings("vms").Get(ctx, "vms-downstream", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ClusterRole", rb.RoleRef.Kind)
	assert.Equal(t, "harvesterhci.io:cloudprovider", rb.RoleRef.Name)
	require.Len(t, rb.Subjects, 1)
	assert.Equal(t, "ServiceAccount", rb.Subjects[0].Kind)
	assert.Equal(t, "downstream", rb.Subjects[0].Name)
	assert.Equal(t, "vms", rb.Subjects[0].Namespace)
}

func TestEnsureServiceAccountToken(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	sa := &corev1.ServiceAccount{ObjectMeta: metav1.ObjectMeta{
		Name: "downstream", Namespace: "vms", UID: types.UID("uid-1"),
	}}
	require.NoError(t, c.EnsureServiceAccountToken(ctx, "downstream-token", sa))
	require.NoError(t, c.EnsureServiceAccountToken(ctx, "downstream-token", sa))

	secret, err := c.GetSecret(ctx, "vms", "downstream-token")
	require.NoError(t, err)
	assert.Equal(t, corev1.SecretTypeServiceAccountToken, secret.Type)
	assert.Equal(t, "downstream", secret.Annotations[corev1.ServiceAccountNameKey])
	assert.Equal(t, "uid-1", secret.Annotations[corev1.ServiceAccountUIDKey])
	require.Len(t, secret.OwnerReferences, 1)
	assert.Equal(t, "ServiceAccount", secret.OwnerReferences[0].Kind)
	assert.Equal(t, types.UID("uid-1"), secret.OwnerReferences[0].UID)

	require.Error(t, c.EnsureServiceAccountToken(ctx, "x", nil))
}

func TestGetConfigMap(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.clientset.CoreV1().ConfigMaps("harvester-system").Create(ctx, &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "vip", Namespace: "harvester-system"},
		Data:       map[string]string{"ip": "10.0.0.5"},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	cm, err := c.GetConfigMap(ctx, "harvester-system", "vip")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cm.Data["ip"])

	_, err = c.GetConfigMap(ctx, "harvester-system", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
