package k8sclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
)

// Outcome describes what Apply did with a manifest.
type Outcome string

const (
	// OutcomeCreated means the object did not exist and was created.
	OutcomeCreated Outcome = "created"
	// OutcomeExists means the object already existed and was left untouched.
	OutcomeExists Outcome = "exists"
	// OutcomeUpdated means the object already existed and was replaced.
	OutcomeUpdated Outcome = "updated"
)

// ApplyOptions controls Apply.
type ApplyOptions struct {
	// Update replaces objects that already exist instead of leaving them.
	Update bool
}

var (
	getOptions    = metav1.GetOptions{}
	createOptions = metav1.CreateOptions{}
	updateOptions = metav1.UpdateOptions{}
)

func listOptions(labelSelector string) metav1.ListOptions {
	return metav1.ListOptions{LabelSelector: labelSelector}
}

// Apply creates a single manifest, treating "already exists" as a
// non-fatal outcome.
func (c *client) Apply(ctx context.Context, manifest any, namespace string, opts ApplyOptions) (Outcome, error) {
	obj, err := ToUnstructured(manifest)
	if err != nil {
		return "", err
	}

	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" {
		return "", ErrNoKind
	}

	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return "", fmt.Errorf("failed to get REST mapping for %v: %w", gvk, err)
	}

	var resource dynamic.ResourceInterface = c.dynamicClient.Resource(mapping.Resource)
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		ns := obj.GetNamespace()
		if ns == "" {
			ns = namespace
		}
		if ns == "" {
			ns = "default"
		}
		obj.SetNamespace(ns)
		resource = c.dynamicClient.Resource(mapping.Resource).Namespace(ns)
	} else {
		obj.SetNamespace("")
	}

	_, err = resource.Create(ctx, obj, createOptions)
	if err == nil {
		return OutcomeCreated, nil
	}
	if !IsAlreadyExists(err) {
		return "", newAPIError("create", obj, err)
	}
	if !opts.Update {
		return OutcomeExists, nil
	}

	current, err := resource.Get(ctx, obj.GetName(), getOptions)
	if err != nil {
		return "", newAPIError("get", obj, err)
	}
	obj.SetResourceVersion(current.GetResourceVersion())
	if _, err := resource.Update(ctx, obj, updateOptions); err != nil {
		return "", newAPIError("update", obj, err)
	}
	return OutcomeUpdated, nil
}

// ToUnstructured converts a manifest into an unstructured object. Text
// manifests must hold exactly one YAML or JSON document; more yield
// ErrMultipleDocuments.
func ToUnstructured(manifest any) (*unstructured.Unstructured, error) {
	switch m := manifest.(type) {
	case *unstructured.Unstructured:
		return m.DeepCopy(), nil
	case map[string]any:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
		return fromJSON(data)
	case string:
		return decodeManifest([]byte(m))
	case []byte:
		return decodeManifest(m)
	case runtime.Object:
		content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(m)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %T to unstructured: %w", m, err)
		}
		obj := &unstructured.Unstructured{Object: content}
		if obj.GetKind() == "" {
			if gvk := m.GetObjectKind().GroupVersionKind(); !gvk.Empty() {
				obj.SetGroupVersionKind(gvk)
			}
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported manifest type %T", manifest)
	}
}

func decodeManifest(data []byte) (*unstructured.Unstructured, error) {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)

	doc, err := nextDocument(decoder)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, err
	}

	if _, err := nextDocument(decoder); err == nil {
		return nil, ErrMultipleDocuments
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}

	return fromJSON(doc)
}

// nextDocument returns the next non-empty document, skipping empty ones such
// as those around a "---" separator. It returns io.EOF at the end of input.
func nextDocument(decoder *yaml.YAMLOrJSONDecoder) ([]byte, error) {
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to decode manifest: %w", err)
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
			continue
		}
		return trimmed, nil
	}
}

// fromJSON builds an unstructured object, keeping integers as int64.
func fromJSON(data []byte) (*unstructured.Unstructured, error) {
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("manifest is not an object: %w", err)
	}
	if kind, _ := probe["kind"].(string); kind == "" {
		return nil, ErrNoKind
	}

	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return obj, nil
}
