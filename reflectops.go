package godispatch

import "reflect"

// DefaultTypeOps returns the reflect-backed subtype oracle used when no
// TypeOps option is supplied. sub is a subtype of super when the two types
// are identical or when super is an interface that sub implements.
func DefaultTypeOps() TypeOps { return reflectOps{} }

type reflectOps struct{}

func (reflectOps) IsSubtype(sub, super reflect.Type) bool {
	if sub == nil || super == nil {
		return false
	}
	if sub == super {
		return true
	}
	if super.Kind() == reflect.Interface {
		return sub.Implements(super)
	}
	return false
}

// isAbstract reports whether t cannot be the runtime type of a value and can
// therefore only be matched by upcast. Such types are indexed in the special
// side-set of a registry node rather than its exact child map.
func isAbstract(t reflect.Type) bool {
	return t.Kind() == reflect.Interface
}
