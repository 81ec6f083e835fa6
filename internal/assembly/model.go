// Package assembly implements the model assembler: the component that
// turns a set of (path, text) Smithy source files into a validated shape
// graph. It understands a deliberately small subset of the Smithy IDL —
// namespace declarations, simple shape declarations, apply statements,
// and array-valued metadata — just enough to exercise cross-file trait
// application and metadata merge, the two behaviors the rest of the
// system is built around.
package assembly

// SourceLocation identifies where a shape or trait was declared. The zero
// value (File == "") represents Smithy's SourceLocation.NONE: a trait
// attached synthetically rather than parsed from source, which must
// survive model rebuilds verbatim since there is no source line to
// re-derive it from.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// IsNone reports whether loc represents SourceLocation.NONE.
func (loc SourceLocation) IsNone() bool {
	return loc.File == ""
}

// Trait is a single trait application on a shape.
type Trait struct {
	Name     string
	Value    any
	Location SourceLocation
}

// Shape is a node in the assembled model.
type Shape struct {
	ID       string
	Type     string
	Location SourceLocation
	Traits   map[string]Trait
}

// clone deep-copies a shape, including its trait map.
func (s *Shape) clone() *Shape {
	c := &Shape{ID: s.ID, Type: s.Type, Location: s.Location}
	if s.Traits != nil {
		c.Traits = make(map[string]Trait, len(s.Traits))
		for k, v := range s.Traits {
			c.Traits[k] = v
		}
	}
	return c
}

// MetadataContribution is the slice of an array-valued metadata entry's
// elements that came from a single file, in the order they appeared.
type MetadataContribution struct {
	File     string
	Elements []any
}

// Metadata is one top-level metadata key. Values is the merged result
// across all contributing files, in file-discovery order; Contributions
// tracks per-file provenance so a file's elements can be retracted
// without rebuilding the whole key from scratch.
type Metadata struct {
	Key           string
	Values        []any
	Contributions []MetadataContribution
}

func (m *Metadata) clone() *Metadata {
	c := &Metadata{Key: m.Key, Values: append([]any(nil), m.Values...)}
	for _, contrib := range m.Contributions {
		c.Contributions = append(c.Contributions, MetadataContribution{
			File:     contrib.File,
			Elements: append([]any(nil), contrib.Elements...),
		})
	}
	return c
}

// Model is the assembled shape graph plus merged metadata.
type Model struct {
	Shapes   map[string]*Shape
	Metadata map[string]*Metadata
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		Shapes:   make(map[string]*Shape),
		Metadata: make(map[string]*Metadata),
	}
}

// Clone deep-copies m so callers may mutate the copy (e.g. as a carry-over
// baseline for an incremental rebuild) without perturbing the original.
func (m *Model) Clone() *Model {
	c := NewModel()
	for id, s := range m.Shapes {
		c.Shapes[id] = s.clone()
	}
	for k, md := range m.Metadata {
		c.Metadata[k] = md.clone()
	}
	return c
}

// ValidationEvent is one diagnostic produced during assembly.
type ValidationEvent struct {
	Severity Severity
	Message  string
	ShapeID  string
	Location SourceLocation
}

// Severity mirrors Smithy's validation event severities.
type Severity string

const (
	SeverityNote    Severity = "NOTE"
	SeverityWarning Severity = "WARNING"
	SeverityDanger  Severity = "DANGER"
	SeverityError   Severity = "ERROR"
)

// ValidatedResult is the outcome of an assembly pass: either a usable
// model (possibly with non-fatal events attached) or, when assembly
// could not produce a model at all, just the events.
type ValidatedResult struct {
	Model  *Model
	Events []ValidationEvent
}

// IsBroken reports whether the result carries a model but also at least
// one ERROR-severity event — usable for recovery, not safe to trust.
func (r *ValidatedResult) IsBroken() bool {
	if r.Model == nil {
		return false
	}
	for _, ev := range r.Events {
		if ev.Severity == SeverityError {
			return true
		}
	}
	return false
}

// IsEmpty reports whether assembly produced no model at all.
func (r *ValidatedResult) IsEmpty() bool {
	return r.Model == nil
}

// HasErrors reports whether any event is ERROR severity.
func (r *ValidatedResult) HasErrors() bool {
	for _, ev := range r.Events {
		if ev.Severity == SeverityError {
			return true
		}
	}
	return false
}
