package topic

import (
	"strings"
)

// Builder constructs topic strings under a common root namespace.
// Pattern: {root}/{segment}/{identifier}
type Builder struct {
	// root is the base namespace for all topics (e.g., "voicepeer/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
// Trailing separators are trimmed.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimRight(root, "/")}
}

// Root returns the namespace every topic is built under.
func (b *Builder) Root() string {
	return b.root
}

// Build returns the topic for the given segment and identifier.
func (b *Builder) Build(segment, id string) string {
	return b.root + "/" + segment + "/" + id
}

// Wildcard returns the filter matching the segment for every identifier.
// Result: {root}/{segment}/+
func (b *Builder) Wildcard(segment string) string {
	return b.Build(segment, Wildcard)
}
