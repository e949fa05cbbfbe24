package validate

import "strings"

// EvaluationContext discriminates an archive's core record stream from its
// extension streams. The set is closed: new streams are always one or the
// other, never a third kind.
type EvaluationContext string

const (
	// Core identifies the archive's core row type (e.g. the taxon stream).
	Core EvaluationContext = "CORE"
	// Extension identifies any extension row type bound to the core.
	Extension EvaluationContext = "EXT"
)

// RowType is a qualified stream identifier (e.g. a Darwin Core row-type
// URI). Comparison is always case-insensitive.
type RowType string

// EqualFold reports whether two row types name the same stream, ignoring case.
func (r RowType) EqualFold(other RowType) bool {
	return strings.EqualFold(string(r), string(other))
}

// Blank reports whether the row type carries no value.
func (r RowType) Blank() bool {
	return strings.TrimSpace(string(r)) == ""
}

// Term is an opaque column identifier. Terms are value-equal; the core
// never interprets their contents beyond using them as map/lookup keys.
type Term struct {
	Name          string // short name, e.g. "taxonID"
	QualifiedName string // fully qualified name, e.g. a Darwin Core URI
}

// NewTerm builds a Term from a short and qualified name.
func NewTerm(name, qualifiedName string) Term {
	return Term{Name: name, QualifiedName: qualifiedName}
}

// String returns the term's short name, used in messages.
func (t Term) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.QualifiedName
}

// isBlank reports whether a value is empty or whitespace-only. The core
// never records or reports on blank values.
func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
