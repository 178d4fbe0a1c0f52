// Package crosswalk resolves free-text state names to canonical 2-letter
// codes using a lookup table with a loosely specified schema: one column
// whose header contains "name", one whose header contains "abbr" or "code".
// Everything else about the table (column order, extra columns) is
// unconstrained.
package crosswalk

import (
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/grantline/grantline/internal/tabular"
)

// Columns identifies which crosswalk columns hold the state name and the
// 2-letter code.
type Columns struct {
	Name int
	Code int
}

// ResolveColumns locates the name and code columns by header substring.
// Header matching is case-insensitive. The name column is any header
// containing "name", or an exact "state" header; the code column is any
// other header containing "abbr" or "code". Returns *tabular.SchemaError
// when either cannot be found.
func ResolveColumns(t *tabular.Table) (Columns, error) {
	nameIdx, ok := t.FindColumn([]string{"name"})
	if !ok {
		// Some crosswalk exports label the name column plain "state".
		nameIdx, ok = t.Column("state")
	}
	if !ok {
		return Columns{}, &tabular.SchemaError{Table: t.Name, Missing: `pattern "name"`}
	}

	codeIdx, ok := t.FindColumn([]string{"abbr", "code"}, nameIdx)
	if !ok {
		return Columns{}, &tabular.SchemaError{Table: t.Name, Missing: `pattern "abbr" or "code"`}
	}

	return Columns{Name: nameIdx, Code: codeIdx}, nil
}

// Resolver maps normalized state names to canonical codes.
//
// Resolution is a pure function of the NFC-normalized, trimmed, lowercased
// input, so it is idempotent: a name resolves to its code, and a code
// (canonical or lowercased) resolves to itself.
type Resolver struct {
	byKey map[string]string
}

// New builds a Resolver from a crosswalk table. Rows whose code is not
// exactly 2 letters are skipped with a warning; they cannot satisfy the
// canonical-code invariant.
func New(t *tabular.Table) (*Resolver, error) {
	cols, err := ResolveColumns(t)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]string, len(t.Rows)*2)
	for i := range t.Rows {
		name := t.Cell(i, cols.Name)
		code := strings.ToUpper(t.Cell(i, cols.Code))
		if name == "" || code == "" {
			continue
		}
		if !validCode(code) {
			slog.Warn("crosswalk row skipped: invalid state code",
				"table", t.Name,
				"name", name,
				"code", code,
			)
			continue
		}
		byKey[Key(name)] = code
		// A code normalizes to itself, so re-resolving resolved input is stable.
		byKey[Key(code)] = code
	}

	return &Resolver{byKey: byKey}, nil
}

// Normalize resolves a free-text state name to its canonical code. The
// second return is false when the input has no crosswalk match; callers
// treat such rows as droppable (territories and aggregate labels are
// expected in administrative data), not as a fatal error.
func (r *Resolver) Normalize(name string) (string, bool) {
	code, ok := r.byKey[Key(name)]
	return code, ok
}

// Len reports the number of distinct lookup keys, for diagnostics.
func (r *Resolver) Len() int { return len(r.byKey) }

// Key produces the join key for a state name: NFC normalization, then trim,
// then lowercase. NFC runs first so visually identical names with different
// codepoint sequences compare equal.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
}

func validCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
