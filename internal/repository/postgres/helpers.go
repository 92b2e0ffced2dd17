package postgres

import (
	"fmt"
	"strings"
)

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "unique constraint")
}

// pageDefaults clamps pagination input the same way for every list query.
func pageDefaults(page, perPage int, sortOrder string) (int, int, string) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	orderDir := "DESC"
	if sortOrder == "asc" {
		orderDir = "ASC"
	}
	return page, perPage, orderDir
}

// filter collects WHERE conditions with positional arguments. Each
// condition holds a single %d verb for its placeholder number.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.conds, " AND ")
}

// page appends LIMIT and OFFSET arguments and returns the clause for them.
func (f *filter) page(page, perPage int) string {
	f.args = append(f.args, perPage, (page-1)*perPage)
	n := len(f.args)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", n-1, n)
}
