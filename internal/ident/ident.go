// Package ident derives the lookup keys and the output designation of a
// catalog object.
package ident

import (
	"errors"
	"fmt"
	"strings"

	"neodisc/internal/domain"
)

// ErrNoIdentifier marks an object carrying neither a permanent nor a
// provisional designation consistent with its numbered flag.
var ErrNoIdentifier = errors.New("object has no primary identifier")

// CandidateKeys returns the ordered keys under which observations of obj may
// be filed. Numbered objects yield their permanent id and, when known, the
// cross-referenced provisional designation. Unnumbered objects yield their
// provisional designation only.
func CandidateKeys(obj domain.Object) ([]domain.CandidateKey, error) {
	perm := strings.TrimSpace(obj.PermanentID)
	prov := strings.TrimSpace(obj.ProvisionalID)
	cross := strings.TrimSpace(obj.CrossProvisionalID)
	if obj.IsNumbered {
		if perm == "" {
			return nil, fmt.Errorf("numbered object (cross %q): %w", cross, ErrNoIdentifier)
		}
		keys := []domain.CandidateKey{{Type: domain.KeyPermanent, Value: perm}}
		if cross != "" {
			keys = append(keys, domain.CandidateKey{Type: domain.KeyCrossProvisional, Value: cross})
		}
		return keys, nil
	}
	if prov == "" {
		return nil, fmt.Errorf("unnumbered object (permanent %q): %w", perm, ErrNoIdentifier)
	}
	return []domain.CandidateKey{{Type: domain.KeyProvisional, Value: prov}}, nil
}

// Designation is the primary designation used in output: the permanent id
// for numbered objects, the provisional id otherwise.
func Designation(obj domain.Object) string {
	if obj.IsNumbered {
		return strings.TrimSpace(obj.PermanentID)
	}
	return strings.TrimSpace(obj.ProvisionalID)
}

// FromDesignation builds an object from a bare designation: all-digit input
// is a permanent number, anything else a provisional designation.
func FromDesignation(desig string) domain.Object {
	desig = strings.TrimSpace(strings.Trim(strings.TrimSpace(desig), "()"))
	if isDigits(desig) {
		return domain.Object{IsNumbered: true, PermanentID: trimZeros(desig)}
	}
	return domain.Object{ProvisionalID: desig}
}

// Less orders objects for output: numbered first by numeric permanent id,
// then unnumbered by provisional id.
func Less(a, b domain.Object) bool {
	if a.IsNumbered != b.IsNumbered {
		return a.IsNumbered
	}
	if a.IsNumbered {
		return lessNumeric(Designation(a), Designation(b))
	}
	return Designation(a) < Designation(b)
}

// lessNumeric compares digit strings of any length without parsing.
func lessNumeric(a, b string) bool {
	a, b = trimZeros(a), trimZeros(b)
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" && s != "" {
		return "0"
	}
	return t
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
