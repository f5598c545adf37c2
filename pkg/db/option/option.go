// Package option composes reusable gorm query modifiers.
package option

import (
	"fmt"
	"strings"
	"time"

	"github.com/upcareer/jobdeck/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single comparison predicate.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if field == "" {
			return db
		}
		return db.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
	})
}

type SortBy struct {
	Field     string
	Direction string
}

// WithQuerySortBy validates a caller-supplied sort field against an allowlist.
func WithQuerySortBy(field, direction string, allowed map[string]bool) SortBy {
	field = strings.TrimSpace(field)
	if !allowed[field] {
		field = "created_at"
	}
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "asc" && direction != "desc" {
		direction = "desc"
	}
	return SortBy{Field: field, Direction: direction}
}

func WithSortBy(sort SortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(fmt.Sprintf("%s %s, id %s", sort.Field, sort.Direction, sort.Direction))
	})
}

// ApplyPagination decodes the cursor token and fetches one extra row so the
// caller can detect a next page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 10
		}
		if size > 250 {
			size = 250
		}

		if token := strings.TrimSpace(p.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				if createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt); err == nil {
					db = db.Where("(created_at, id) < (?, ?)", createdAt, cursor.ID)
				}
			}
		}

		return db.Limit(size + 1)
	})
}
