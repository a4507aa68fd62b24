package godispatch

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/reoring/godispatch/i18n"
)

// Error codes (exported consts for IDE completion and type safety by convention)
const (
	CodeDuplicateCandidate     = "duplicate_candidate"
	CodeAmbiguousCandidates    = "ambiguous_candidates"
	CodeAmbiguousBinding       = "ambiguous_binding"
	CodeNoApplicableCandidate  = "no_applicable_candidate"
	CodeUnboundTypeVar         = "unbound_type_var"
	CodeUnregisterUnsupported  = "unregister_unsupported"
)

// ErrUnregisterUnsupported is returned by Dispatcher.Unregister. Removal is
// contractually unimplemented rather than silently wrong: the registry is
// read-mostly and candidates are immutable once registered.
var ErrUnregisterUnsupported error = &unregisterUnsupportedError{}

type unregisterUnsupportedError struct{}

func (*unregisterUnsupportedError) Code() string { return CodeUnregisterUnsupported }

func (*unregisterUnsupportedError) Error() string {
	return "godispatch: " + i18n.T(CodeUnregisterUnsupported, nil)
}

// DispatchError is implemented by every call- and registration-time error,
// exposing its stable code.
type DispatchError interface {
	error
	Code() string
}

// AsDispatchError extracts a DispatchError from an error using errors.As.
func AsDispatchError(err error) (DispatchError, bool) {
	var de DispatchError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// DuplicateCandidateError reports a registration whose (constraints,
// priority) pair is already present. The register call fails; the registry
// is left unchanged.
type DuplicateCandidateError struct {
	Constraints []Constraint
	Priority    int
}

func (e *DuplicateCandidateError) Code() string { return CodeDuplicateCandidate }

func (e *DuplicateCandidateError) Error() string {
	return fmt.Sprintf("godispatch: %s: <%s> priority %d",
		i18n.T(CodeDuplicateCandidate, nil), renderConstraints(e.Constraints), e.Priority)
}

// AmbiguousCandidatesError reports a layer that resolved with more than one
// equal-priority match for the queried type tuple.
type AmbiguousCandidatesError struct {
	Candidates []*Candidate
	Types      []reflect.Type
}

func (e *AmbiguousCandidatesError) Code() string { return CodeAmbiguousCandidates }

func (e *AmbiguousCandidatesError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.String()
	}
	return fmt.Sprintf("godispatch: %s: [%s] for <%s>",
		i18n.T(CodeAmbiguousCandidates, nil), strings.Join(names, ", "), renderTypes(e.Types))
}

// AmbiguousBindingError reports a type variable whose constraint set admits
// multiple incomparable minimal upcasts for the observed subtype. Adding the
// subtype, or a common subtype of the tying members, as an explicit member
// resolves it.
type AmbiguousBindingError struct {
	Variable string
	Subtype  reflect.Type
	Members  []reflect.Type
}

func (e *AmbiguousBindingError) Code() string { return CodeAmbiguousBinding }

func (e *AmbiguousBindingError) Error() string {
	return fmt.Sprintf("godispatch: %s: $%s must up-cast %s to one of its members, but [%s] are unrelated (consider adding %s as an explicit member, or a specialized candidate for it)",
		i18n.T(CodeAmbiguousBinding, nil), e.Variable, typeName(e.Subtype),
		renderTypes(e.Members), typeName(e.Subtype))
}

// NoApplicableCandidateError reports an exhausted search with no default
// configured.
type NoApplicableCandidateError struct {
	Types []reflect.Type
}

func (e *NoApplicableCandidateError) Code() string { return CodeNoApplicableCandidate }

func (e *NoApplicableCandidateError) Error() string {
	return fmt.Sprintf("godispatch: %s for <%s>",
		i18n.T(CodeNoApplicableCandidate, nil), renderTypes(e.Types))
}

func renderTypes(ts []reflect.Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = typeName(t)
	}
	return strings.Join(names, ", ")
}

func renderConstraints(cs []Constraint) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
