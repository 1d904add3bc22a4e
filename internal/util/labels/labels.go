package labels

import (
	k8slabels "k8s.io/apimachinery/pkg/labels"
)

// Harvester label and annotation keys.
const (
	// KeyNodeName selects the PCI devices of a Harvester node.
	KeyNodeName = "nodename"

	// KeyImageDisplayName selects VM images by their display name.
	KeyImageDisplayName = "harvesterhci.io/imageDisplayName"

	// AnnotationImageID ties a disk claim to the VM image it is cloned from.
	AnnotationImageID = "harvesterhci.io/imageId"
)

// SelectorForNode returns the label selector for a node's PCI devices.
func SelectorForNode(node string) string {
	return k8slabels.SelectorFromSet(k8slabels.Set{KeyNodeName: node}).String()
}

// SelectorForImage returns the label selector for VM images with the given
// display name.
func SelectorForImage(displayName string) string {
	return k8slabels.SelectorFromSet(k8slabels.Set{KeyImageDisplayName: displayName}).String()
}
