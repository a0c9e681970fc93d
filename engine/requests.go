package engine

import (
	"encoding/json"
	"fmt"

	"zplink/labeldata"
)

// LabelRequest asks for a label for one inventory object. Object holds the
// JSON document of the given Kind.
type LabelRequest struct {
	Kind      string          `json:"kind"`
	Object    json.RawMessage `json:"object"`
	Printer   string          `json:"printer,omitempty"`
	Template  string          `json:"template,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	PrintedBy string          `json:"printed_by,omitempty"`
}

// Decode builds the typed object.
func (r LabelRequest) Decode() (labeldata.Object, error) {
	if r.Kind == "" {
		return nil, fmt.Errorf("%w: kind is required", ErrInvalidInput)
	}
	if len(r.Object) == 0 {
		return nil, fmt.Errorf("%w: object is required", ErrInvalidInput)
	}
	obj, err := labeldata.Decode(r.Kind, r.Object)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return obj, nil
}

// BatchLabelRequest asks for labels for several objects of one kind on one printer.
type BatchLabelRequest struct {
	Kind      string            `json:"kind"`
	Objects   []json.RawMessage `json:"objects"`
	Printer   string            `json:"printer,omitempty"`
	Template  string            `json:"template,omitempty"`
	Quantity  int               `json:"quantity,omitempty"`
	PrintedBy string            `json:"printed_by,omitempty"`
}

// Decode builds the typed objects. An object that does not decode is kept as
// nil so the batch counts it as failed.
func (r BatchLabelRequest) Decode() ([]labeldata.Object, error) {
	if r.Kind == "" {
		return nil, fmt.Errorf("%w: kind is required", ErrInvalidInput)
	}
	if _, err := labeldata.ParseKind(r.Kind); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(r.Objects) == 0 {
		return nil, fmt.Errorf("%w: no objects selected", ErrInvalidInput)
	}
	objs := make([]labeldata.Object, len(r.Objects))
	for i, raw := range r.Objects {
		obj, err := labeldata.Decode(r.Kind, raw)
		if err != nil {
			continue
		}
		objs[i] = obj
	}
	return objs, nil
}
