package harvester

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/utils/ptr"

	"github.com/prh-io/prh/internal/config"
	"github.com/prh-io/prh/internal/util/labels"
	"github.com/prh-io/prh/internal/util/naming"
)

// ErrImageNotFound is returned when no VM image carries the wanted display name.
var ErrImageNotFound = errors.New("vm image not found")

// Disks builds the disk claims of vm: the OS disk cloned from imageName,
// followed by the extra disks in declared order.
func Disks(ctx context.Context, lister Lister, vm config.VM, imageName string) ([]corev1.PersistentVolumeClaim, error) {
	osDisk, err := OSDisk(ctx, lister, vm, imageName)
	if err != nil {
		return nil, err
	}

	disks := make([]corev1.PersistentVolumeClaim, 0, 1+len(vm.ExtraDisks))
	disks = append(disks, osDisk)
	for i, extra := range vm.ExtraDisks {
		disks = append(disks, ExtraDisk(vm, extra, i+1))
	}
	return disks, nil
}

// OSDisk builds the boot disk claim of vm from the first VM image whose
// display name is imageName.
func OSDisk(ctx context.Context, lister Lister, vm config.VM, imageName string) (corev1.PersistentVolumeClaim, error) {
	list, err := lister.List(ctx, VirtualMachineImageGVR, "", labels.SelectorForImage(imageName))
	if err != nil {
		return corev1.PersistentVolumeClaim{}, fmt.Errorf("failed to look up image %s: %w", imageName, err)
	}
	if len(list.Items) == 0 {
		return corev1.PersistentVolumeClaim{}, fmt.Errorf("%w: %s", ErrImageNotFound, imageName)
	}

	image := list.Items[0]
	storageClass, _, _ := unstructured.NestedString(image.Object, "status", "storageClassName")
	if storageClass == "" {
		return corev1.PersistentVolumeClaim{}, fmt.Errorf("image %s (%s) has no storage class yet",
			imageName, naming.ImageID(image.GetNamespace(), image.GetName()))
	}

	claim := diskClaim(naming.OSDisk(vm.Name), vm.DiskSize, storageClass)
	claim.Annotations = map[string]string{
		labels.AnnotationImageID: naming.ImageID(image.GetNamespace(), image.GetName()),
	}
	return claim, nil
}

// ExtraDisk builds the claim of an additional disk.
func ExtraDisk(vm config.VM, disk config.ExtraDisk, ordinal int) corev1.PersistentVolumeClaim {
	return diskClaim(naming.Disk(vm.Name, ordinal), disk.DiskSize, disk.StorageClass)
}

func diskClaim(name string, sizeGi int, storageClass string) corev1.PersistentVolumeClaim {
	return corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(fmt.Sprintf("%dGi", sizeGi)),
				},
			},
			VolumeMode:       ptr.To(corev1.PersistentVolumeBlock),
			StorageClassName: ptr.To(storageClass),
		},
	}
}
