package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded refers to the value a conflicting insert proposed
func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

// AssignExcluded renders the SET list of an upsert taking every column from the proposed row
func AssignExcluded(columns ...string) string {
	assignments := make([]string, 0, len(columns))
	for _, col := range columns {
		assignments = append(assignments, fmt.Sprintf("%s = %s", col, Excluded(col)))
	}
	return strings.Join(assignments, ", ")
}

// InsertBuilder is a PostgreSQL insert builder with upsert clauses
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		sqlbuilder.PostgreSQL.NewInsertBuilder(),
	}
}

// OnConflictUpdate overwrites columns with the proposed values when the conflict target is
// already present. Call it after Values.
func (b *InsertBuilder) OnConflictUpdate(target []string, columns ...string) *InsertBuilder {
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(target, ", "), AssignExcluded(columns...)))
	return b
}

func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.SQL("ON CONFLICT DO NOTHING")
	return b
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// Args converts a string slice for an IN condition
func Args(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
