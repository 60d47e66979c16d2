package iot

import "reflect"

// Type tags reported in descriptors.
const (
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// Descriptor is the introspection document of one thing.
type Descriptor struct {
	Name        string                        `json:"name"`
	Description string                        `json:"description"`
	Properties  map[string]PropertyDescriptor `json:"properties"`
	Methods     map[string]MethodDescriptor   `json:"methods"`
}

type PropertyDescriptor struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}

type MethodDescriptor struct {
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters"`
}

// Parameter declares one named argument of a method.
type Parameter struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}

// ThingState is the reported value of every property of a thing.
type ThingState struct {
	Name  string         `json:"name"`
	State map[string]any `json:"state"`
}

// Command asks a thing to run one of its methods.
type Command struct {
	Name       string         `json:"name"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// typeOf maps a property value to its coarse JSON type tag.
func typeOf(v any) string {
	if v == nil {
		return TypeNull
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return TypeNull
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.String:
		return TypeString
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return TypeNull
		}
		return TypeArray
	default:
		return TypeObject
	}
}
