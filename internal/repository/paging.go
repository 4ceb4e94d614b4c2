package repository

import (
	"fmt"
	"strconv"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

const (
	defaultLimit = 20
	maxLimit     = 250
)

func pageLimit(opts domain.ListOptions) int {
	switch {
	case opts.Limit <= 0:
		return defaultLimit
	case opts.Limit > maxLimit:
		return maxLimit
	}
	return opts.Limit
}

// decodeToken returns the offset a next token points at
func decodeToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid next token %q", token)
	}
	return n, nil
}

func encodeToken(offset int) string {
	return strconv.Itoa(offset)
}

// paginate slices items for opts. items must already be in listing order.
func paginate[T any](items []T, opts domain.ListOptions) (domain.Page[T], error) {
	offset, err := decodeToken(opts.NextToken)
	if err != nil {
		return domain.Page[T]{}, err
	}
	limit := pageLimit(opts)
	if offset >= len(items) {
		return domain.Page[T]{Items: []T{}}, nil
	}
	end := offset + limit
	page := domain.Page[T]{}
	if end < len(items) {
		page.NextToken = encodeToken(end)
	} else {
		end = len(items)
	}
	page.Items = append([]T(nil), items[offset:end]...)
	return page, nil
}

// trimPage turns a limit+1 query result into a page
func trimPage[T any](rows []T, offset, limit int) domain.Page[T] {
	page := domain.Page[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextToken = encodeToken(offset + limit)
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
