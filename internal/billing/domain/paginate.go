package domain

import (
	"context"
	"errors"
)

// ListFunc fetches one page.
type ListFunc[T any] func(ctx context.Context, params ListParams) (Page[T], error)

// Paginate drives list until a page reports no continuation, handing every
// page to visit in order. An empty page also ends the walk. The cursor for the next page is the id of the last
// record on the previous one.
func Paginate[T any](ctx context.Context, pageSize int, list ListFunc[T], id func(T) string, visit func([]T) error) error {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	params := ListParams{Limit: pageSize}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := list(ctx, params)
		if err != nil {
			return err
		}
		if err := visit(page.Data); err != nil {
			return err
		}
		// An empty page has no cursor to continue from, whatever HasMore says.
		if !page.HasMore || len(page.Data) == 0 {
			return nil
		}

		next := id(page.Data[len(page.Data)-1])
		if next == "" || next == params.StartingAfter {
			return errors.New("paginate: cursor did not advance")
		}
		params.StartingAfter = next
	}
}
