package manifests

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

type deviceRef struct {
	Name       string `json:"name"`
	DeviceName string `json:"deviceName"`
}

func testBlueprint() map[string]any {
	return map[string]any{
		"cluster": map[string]any{"name": "downstream", "kubernetes_version": "v1.31.1+rke2r1"},
		"machines": map[string]any{
			"namespace":           "vms",
			"ssh_authorized_keys": []any{"ssh-ed25519 AAAA test"},
		},
	}
}

func testDisk(name string) corev1.PersistentVolumeClaim {
	return corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("40Gi")},
			},
		},
	}
}

func renderYAML(t *testing.T, name string, data map[string]any) map[string]any {
	t.Helper()

	out, err := NewRenderer("").Render(name, data)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc), out)
	return doc
}

func TestFilters(t *testing.T) {
	t.Parallel()

	y, err := ToYAML(map[string]any{"a": 1, "b": []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "a: 1\nb:\n- x\n", y)

	j, err := ToJSON(map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, j)

	assert.Equal(t, "aMOkbGzDtg==", B64Encode("hällö"))
}

func TestRender_InlineFilters(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "probe.yaml.tmpl"),
		[]byte(`{{ .v | toJson }}|{{ b64encode .s }}|{{ toYaml .v | trim }}|{{ .s | upper }}`), 0o600))

	out, err := NewRenderer(dir).Render("probe", map[string]any{"v": map[string]any{"k": "v"}, "s": "abc"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}|YWJj|k: v|ABC`, out)
}

func TestRender_UnknownTemplate(t *testing.T) {
	t.Parallel()

	_, err := NewRenderer("").Render("does-not-exist", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")

	_, err = NewRenderer("").Render("../cluster", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid template name")
}

func TestRender_OverrideDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "network-data.yaml.tmpl"), []byte("custom: {{ .vm.name }}\n"), 0o600))

	r := NewRenderer(dir)

	out, err := r.Render(NetworkData, map[string]any{"vm": map[string]any{"name": "vm-1"}})
	require.NoError(t, err)
	assert.Equal(t, "custom: vm-1\n", out)

	// Templates missing from the directory fall back to the embedded ones.
	out, err = r.Render(CloudInitSecret, map[string]any{
		"vm": map[string]any{"name": "vm-1"}, "cloudInitSecret": "vm-1-cloudinit",
		"namespace": "vms", "userData": "u", "networkData": "n",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "kind: Secret")
}

func TestRender_BrokenTemplate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user-data.yaml.tmpl"), []byte("{{ .vm.name "), 0o600))

	_, err := NewRenderer(dir).Render(UserData, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template user-data")
}

func TestRender_Cluster(t *testing.T) {
	t.Parallel()

	doc := renderYAML(t, Cluster, map[string]any{"blueprint": testBlueprint()})

	assert.Equal(t, "provisioning.cattle.io/v1", doc["apiVersion"])
	assert.Equal(t, "Cluster", doc["kind"])
	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, "downstream", meta["name"])
	assert.Equal(t, "fleet-default", meta["namespace"])
	spec := doc["spec"].(map[string]any)
	assert.Equal(t, "v1.31.1+rke2r1", spec["kubernetesVersion"])
	rke := spec["rkeConfig"].(map[string]any)
	assert.Equal(t, "calico", rke["machineGlobalConfig"].(map[string]any)["cni"])
}

func TestRender_ClusterCustomRKEConfig(t *testing.T) {
	t.Parallel()

	bp := testBlueprint()
	bp["cluster"].(map[string]any)["rke_config"] = map[string]any{
		"machineGlobalConfig": map[string]any{"cni": "cilium"},
	}
	doc := renderYAML(t, Cluster, map[string]any{"blueprint": bp})

	rke := doc["spec"].(map[string]any)["rkeConfig"].(map[string]any)
	assert.Equal(t, "cilium", rke["machineGlobalConfig"].(map[string]any)["cni"])
}

func TestRender_VirtualMachine(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"blueprint":       testBlueprint(),
		"namespace":       "vms",
		"vm":              map[string]any{"name": "vm-1", "harvester_node": "node-1", "cpu": 4, "memory": "8Gi"},
		"disks":           []corev1.PersistentVolumeClaim{testDisk("vm-1-disk-0"), testDisk("vm-1-disk-1")},
		"pcidevices":      []deviceRef{{Name: "node-1-3b000", DeviceName: "nvidia.com/GPU"}},
		"cloudInitSecret": "vm-1-cloudinit",
	}
	doc := renderYAML(t, VirtualMachine, data)

	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, "vm-1", meta["name"])
	assert.Equal(t, "vms", meta["namespace"])

	annotation := meta["annotations"].(map[string]any)["harvesterhci.io/volumeClaimTemplates"].(string)
	var claims []corev1.PersistentVolumeClaim
	require.NoError(t, yaml.Unmarshal([]byte(annotation), &claims))
	require.Len(t, claims, 2)
	assert.Equal(t, "vm-1-disk-0", claims[0].Name)

	tmpl := doc["spec"].(map[string]any)["template"].(map[string]any)["spec"].(map[string]any)
	domain := tmpl["domain"].(map[string]any)
	assert.Equal(t, float64(4), domain["cpu"].(map[string]any)["cores"])
	devices := domain["devices"].(map[string]any)
	disks := devices["disks"].([]any)
	require.Len(t, disks, 3)
	assert.Equal(t, float64(1), disks[0].(map[string]any)["bootOrder"])
	assert.NotContains(t, disks[1].(map[string]any), "bootOrder")

	hostDevices := devices["hostDevices"].([]any)
	require.Len(t, hostDevices, 1)
	assert.Equal(t, "nvidia.com/GPU", hostDevices[0].(map[string]any)["deviceName"])

	volumes := tmpl["volumes"].([]any)
	require.Len(t, volumes, 3)
	cloudInit := volumes[2].(map[string]any)["cloudInitNoCloud"].(map[string]any)
	assert.Equal(t, "vm-1-cloudinit", cloudInit["secretRef"].(map[string]any)["name"])
}

func TestRender_VirtualMachineWithoutDevices(t *testing.T) {
	t.Parallel()

	doc := renderYAML(t, VirtualMachine, map[string]any{
		"blueprint":       testBlueprint(),
		"namespace":       "vms",
		"vm":              map[string]any{"name": "vm-2", "harvester_node": "node-2"},
		"disks":           []corev1.PersistentVolumeClaim{testDisk("vm-2-disk-0")},
		"cloudInitSecret": "vm-2-cloudinit",
	})

	devices := doc["spec"].(map[string]any)["template"].(map[string]any)["spec"].(map[string]any)["domain"].(map[string]any)["devices"].(map[string]any)
	assert.NotContains(t, devices, "hostDevices")
}

func TestRender_UserData(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer("").Render(UserData, map[string]any{
		"blueprint":      testBlueprint(),
		"vm":             map[string]any{"name": "vm-1"},
		"nodeCommand":    "curl -fL https://rancher/install.sh | sh -s - --server https://rancher",
		"role":           "--etcd --controlplane",
		"csiCloudConfig": "apiVersion: v1\nkind: Config\n",
	})
	require.NoError(t, err)
	require.Contains(t, out, "#cloud-config\n")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "vm-1", doc["hostname"])
	assert.Equal(t, []any{"ssh-ed25519 AAAA test"}, doc["ssh_authorized_keys"])

	runcmd := doc["runcmd"].([]any)
	require.Len(t, runcmd, 1)
	assert.Equal(t, "curl -fL https://rancher/install.sh | sh -s - --server https://rancher --etcd --controlplane", runcmd[0])

	files := doc["write_files"].([]any)
	content := files[0].(map[string]any)["content"].(string)
	decoded, err := base64.StdEncoding.DecodeString(content)
	require.NoError(t, err)
	assert.Equal(t, "apiVersion: v1\nkind: Config\n", string(decoded))
}

func TestRender_UserDataWithoutJoin(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer("").Render(UserData, map[string]any{
		"blueprint": map[string]any{"machines": map[string]any{}},
		"vm":        map[string]any{"name": "vm-1"},
		"role":      "",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "runcmd")
	assert.NotContains(t, out, "write_files")
}

func TestRender_NetworkData(t *testing.T) {
	t.Parallel()

	doc := renderYAML(t, NetworkData, map[string]any{"vm": map[string]any{"name": "vm-1"}})
	assert.Equal(t, float64(2), doc["network"].(map[string]any)["version"])

	custom := map[string]any{"network": map[string]any{"version": 1}}
	doc = renderYAML(t, NetworkData, map[string]any{"vm": map[string]any{"name": "vm-1", "network_data": custom}})
	assert.Equal(t, float64(1), doc["network"].(map[string]any)["version"])
}

func TestRender_CloudInitSecret(t *testing.T) {
	t.Parallel()

	doc := renderYAML(t, CloudInitSecret, map[string]any{
		"vm":              map[string]any{"name": "vm-1"},
		"namespace":       "vms",
		"cloudInitSecret": "vm-1-cloudinit",
		"userData":        "#cloud-config\n",
		"networkData":     "network: {}\n",
	})

	assert.Equal(t, "Secret", doc["kind"])
	data := doc["data"].(map[string]any)
	assert.Equal(t, B64Encode("#cloud-config\n"), data["userdata"])
	assert.Equal(t, B64Encode("network: {}\n"), data["networkdata"])
}

func TestRender_Concurrent(t *testing.T) {
	t.Parallel()
	r := NewRenderer("")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Render(NetworkData, map[string]any{"vm": map[string]any{"name": "vm"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
