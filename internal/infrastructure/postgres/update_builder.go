package postgres

import (
	"fmt"
	"strings"
)

// setBuilder compiles a partial update into a parameterized SET clause.
// Only columns registered at construction can be assigned; values are always
// bound as $n placeholders.
type setBuilder struct {
	allowed map[string]struct{}
	clauses []string
	args    []any
}

func newSetBuilder(columns ...string) *setBuilder {
	allowed := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		allowed[c] = struct{}{}
	}
	return &setBuilder{allowed: allowed}
}

// Set assigns value to column.
func (b *setBuilder) Set(column string, value any) error {
	if _, ok := b.allowed[column]; !ok {
		return fmt.Errorf("column %q is not updatable", column)
	}
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf("%s = $%d", column, len(b.args)))
	return nil
}

// SetNull assigns NULL to column.
func (b *setBuilder) SetNull(column string) error {
	if _, ok := b.allowed[column]; !ok {
		return fmt.Errorf("column %q is not updatable", column)
	}
	b.clauses = append(b.clauses, column+" = NULL")
	return nil
}

// Build returns the SET clause (with updated_at = NOW() appended), its
// arguments and the next free placeholder index.
func (b *setBuilder) Build() (string, []any, int) {
	clauses := append(append([]string(nil), b.clauses...), "updated_at = NOW()")
	return strings.Join(clauses, ", "), b.args, len(b.args) + 1
}
