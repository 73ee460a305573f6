package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind names an entity type.
type Kind string

const (
	KindAgent        Kind = "agent"
	KindOrganization Kind = "organization"
	KindLocation     Kind = "location"
	KindProduct      Kind = "product"
	KindSchema       Kind = "schema"
)

// Kinds lists every entity kind in apply order.
var Kinds = []Kind{KindOrganization, KindAgent, KindSchema, KindLocation, KindProduct}

// ParseKind accepts a kind name, case-insensitively, with an optional plural.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSuffix(strings.ToLower(s), "s"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Op is a state change carried by a ledger delta.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// NormalizeKey returns the NFC form of a natural key so that visually
// identical keys written by different producers address the same row.
func NormalizeKey(key string) string {
	return norm.NFC.String(key)
}

// NormalizeScope applies NormalizeKey to a scope, keeping nil as nil.
func NormalizeScope(scope *string) *string {
	if scope == nil {
		return nil
	}
	return ServiceID(NormalizeKey(*scope))
}
