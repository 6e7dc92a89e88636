package models

import "strings"

// Ref turns a client supplied id into an optional reference. Blank ids mean
// "unassigned".
func Ref(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &id
}

// Deref returns the referenced id or "" when unassigned.
func Deref(ref *string) string {
	if ref == nil {
		return ""
	}
	return *ref
}

// SameRef reports whether two optional references point at the same id.
func SameRef(a, b *string) bool {
	return Deref(a) == Deref(b)
}
