package k8sclient

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ErrNoKind is returned when a manifest does not declare its kind.
var ErrNoKind = errors.New("object has no kind set")

// ErrMultipleDocuments is returned when a text manifest holds more than one
// document.
var ErrMultipleDocuments = errors.New("manifest holds more than one document")

// APIError is a failed API call for a specific object. Op is the verb that
// failed ("create", "get" or "update"). Reason and Message are the
// machine-readable reason and message returned by the API server.
type APIError struct {
	Op        string
	Kind      string
	Name      string
	Namespace string
	Reason    metav1.StatusReason
	Code      int32
	Message   string
	Err       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to %s %s %s: %s (%d): %s",
		e.Op, e.Kind, qualifiedName(e.Namespace, e.Name), e.Reason, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newAPIError(op string, obj *unstructured.Unstructured, err error) *APIError {
	apiErr := &APIError{
		Op:        op,
		Kind:      obj.GetKind(),
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		Reason:    apierrors.ReasonForError(err),
		Message:   err.Error(),
		Err:       err,
	}
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		apiErr.Code = status.Status().Code
		if msg := status.Status().Message; msg != "" {
			apiErr.Message = msg
		}
	}
	return apiErr
}

// IsAlreadyExists reports whether err says that the object already exists.
func IsAlreadyExists(err error) bool {
	return apierrors.IsAlreadyExists(err)
}

// IsNotFound reports whether err says that the object does not exist.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}
