package persistence

import (
	"strings"

	"github.com/erp/returns/internal/domain/returns"
	"gorm.io/gorm/clause"
)

// returnSort is a whitelisted ordering for return request listings. Unknown
// columns and directions fall back to newest first.
type returnSort struct {
	column string
	desc   bool
}

var returnSortColumns = map[string]func(a, b *returns.ReturnRequest) int{
	"created_at": func(a, b *returns.ReturnRequest) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updated_at": func(a, b *returns.ReturnRequest) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	"deadline_at": func(a, b *returns.ReturnRequest) int {
		switch {
		case a.DeadlineAt == nil && b.DeadlineAt == nil:
			return 0
		case a.DeadlineAt == nil:
			return -1
		case b.DeadlineAt == nil:
			return 1
		}
		return a.DeadlineAt.Compare(*b.DeadlineAt)
	},
	"item_price": func(a, b *returns.ReturnRequest) int { return a.ItemPrice.Cmp(b.ItemPrice) },
	"status":     func(a, b *returns.ReturnRequest) int { return strings.Compare(string(a.Status), string(b.Status)) },
}

func parseReturnSort(filter returns.ListFilter) returnSort {
	column := strings.TrimSpace(filter.OrderBy)
	if _, ok := returnSortColumns[column]; !ok {
		column = "created_at"
	}
	return returnSort{
		column: column,
		desc:   !strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc"),
	}
}

// clauses orders by the column then by id so pages are stable
func (s returnSort) clauses() clause.OrderBy {
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: s.column}, Desc: s.desc},
		{Column: clause.Column{Name: "id"}},
	}}
}

// compare mirrors clauses for the in-memory repository
func (s returnSort) compare(a, b *returns.ReturnRequest) int {
	c := returnSortColumns[s.column](a, b)
	if s.desc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}
