package ir

import "strings"

// Row is one fetched result row, keyed by qualified column label.
//
// A label missing from the row means the column was not selected by the
// query. A label present with Null means the column was selected and held
// SQL NULL (for instance the columns of an unmatched LEFT JOIN).
type Row map[string]Value

// Label returns the qualified label of a column under a table alias.
// Example: Label("Order->customer", "id") → "Order->customer.id"
func Label(alias, column string) string {
	return alias + "." + column
}

// Lookup returns the value of a column under a table alias.
func (r Row) Lookup(alias, column string) (Value, bool) {
	v, ok := r[Label(alias, column)]
	return v, ok
}

// HasAlias reports whether any column of the alias was selected into the row.
func (r Row) HasAlias(alias string) bool {
	prefix := alias + "."
	for label := range r {
		if strings.HasPrefix(label, prefix) {
			return true
		}
	}
	return false
}
