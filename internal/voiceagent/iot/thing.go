package iot

import (
	"fmt"
	"sort"
)

// Getter reads the current value of a property.
type Getter func() any

// Handler runs a method with the parameters the backend supplied.
type Handler func(params map[string]any) error

type property struct {
	name        string
	description string
	get         Getter
}

type method struct {
	name        string
	description string
	parameters  map[string]Parameter
	call        Handler
}

// Thing is one capability of the device: read-only properties and invocable methods.
type Thing struct {
	name        string
	description string
	properties  []property
	methods     []method
}

func NewThing(name, description string) *Thing {
	return &Thing{name: name, description: description}
}

func (t *Thing) Name() string { return t.name }

// AddProperty declares a property. A later declaration with the same name replaces the earlier one.
func (t *Thing) AddProperty(name, description string, get Getter) *Thing {
	p := property{name: name, description: description, get: get}
	for i := range t.properties {
		if t.properties[i].name == name {
			t.properties[i] = p
			return t
		}
	}
	t.properties = append(t.properties, p)
	return t
}

// AddMethod declares a method and the parameter names it accepts.
func (t *Thing) AddMethod(name, description string, parameters map[string]Parameter, call Handler) *Thing {
	params := make(map[string]Parameter, len(parameters))
	for k, v := range parameters {
		params[k] = v
	}
	m := method{name: name, description: description, parameters: params, call: call}
	for i := range t.methods {
		if t.methods[i].name == name {
			t.methods[i] = m
			return t
		}
	}
	t.methods = append(t.methods, m)
	return t
}

// Descriptor evaluates every getter once to infer property types.
func (t *Thing) Descriptor() Descriptor {
	d := Descriptor{
		Name:        t.name,
		Description: t.description,
		Properties:  make(map[string]PropertyDescriptor, len(t.properties)),
		Methods:     make(map[string]MethodDescriptor, len(t.methods)),
	}
	for _, p := range t.properties {
		d.Properties[p.name] = PropertyDescriptor{Description: p.description, Type: typeOf(p.get())}
	}
	for _, m := range t.methods {
		params := make(map[string]Parameter, len(m.parameters))
		for k, v := range m.parameters {
			params[k] = v
		}
		d.Methods[m.name] = MethodDescriptor{Description: m.description, Parameters: params}
	}
	return d
}

func (t *Thing) State() ThingState {
	s := ThingState{Name: t.name, State: make(map[string]any, len(t.properties))}
	for _, p := range t.properties {
		s.State[p.name] = p.get()
	}
	return s
}

// Invoke runs the named method. Every supplied parameter must be declared;
// declared parameters that are missing are left to the handler.
func (t *Thing) Invoke(name string, params map[string]any) error {
	var m *method
	for i := range t.methods {
		if t.methods[i].name == name {
			m = &t.methods[i]
			break
		}
	}
	if m == nil {
		return fmt.Errorf("method %q of %q: %w", name, t.name, ErrNotFound)
	}

	var unexpected []string
	for k := range params {
		if _, ok := m.parameters[k]; !ok {
			unexpected = append(unexpected, k)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("method %q of %q: unexpected parameters %v: %w", name, t.name, unexpected, ErrInvalidArgument)
	}

	if params == nil {
		params = map[string]any{}
	}
	return m.call(params)
}
