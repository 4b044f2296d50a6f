package option

import (
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// ApplyPagination limits the query to one page plus a lookahead row. Callers
// order by id desc; snowflake ids grow with creation time so the cursor id
// alone marks the page boundary.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return ApplyPaginationOn("id", page)
}

// ApplyPaginationOn is ApplyPagination for queries that alias the id column.
func ApplyPaginationOn(column string, page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := pagination.NormalizePageSize(page.PageSize)
		if id, err := pagination.CursorID(page.PageToken); err == nil && id != 0 {
			db = db.Where(column+" < ?", id)
		}
		return db.Limit(size + 1)
	})
}

func WithOrder(order string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	})
}
