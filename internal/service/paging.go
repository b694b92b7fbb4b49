package service

import "github.com/examhall/examhall-backend/internal/pagination"

// MaxPerPage caps page sizes requested by clients.
const MaxPerPage = 100

// paginate fetches one page of rows. The page is clamped into range once the
// total is known, costing a second query only when the caller asked for a
// page past the end.
func paginate[T any](page, perPage int, fetch func(limit, offset int) ([]T, int, error)) ([]T, pagination.State, error) {
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if _, err := pagination.New(0, perPage, page); err != nil {
		return nil, pagination.State{}, err
	}
	if page < 1 {
		page = 1
	}

	items, total, err := fetch(perPage, (page-1)*perPage)
	if err != nil {
		return nil, pagination.State{}, err
	}
	state, err := pagination.New(total, perPage, page)
	if err != nil {
		return nil, pagination.State{}, err
	}
	if state.Page != page {
		if items, _, err = fetch(state.Limit(), state.Offset()); err != nil {
			return nil, pagination.State{}, err
		}
	}
	return items, state, nil
}
