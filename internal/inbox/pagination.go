package inbox

// mergeMode says how a fetched page is merged into the loaded list.
type mergeMode int

const (
	mergeReplace mergeMode = iota
	mergeAppend
)

// PageState is the externally visible pagination position.
type PageState struct {
	CurrentPage int
	TotalPages  int
	HasMore     bool
}

// Pagination tracks which pages of the current listing are loaded. Page 1
// replaces the list; only the page directly after the current one may be
// appended. It is not safe for concurrent use; the Store guards it.
type Pagination struct {
	current int
	total   int
}

// NewPagination returns a controller with nothing loaded.
func NewPagination() *Pagination {
	return &Pagination{}
}

// State returns the current position.
func (p *Pagination) State() PageState {
	return PageState{
		CurrentPage: p.current,
		TotalPages:  p.total,
		HasMore:     p.current < p.total,
	}
}

// plan decides how a request for page would be merged, refusing requests
// that would interleave pages out of order.
func (p *Pagination) plan(page int) (mergeMode, error) {
	switch {
	case page == 1:
		return mergeReplace, nil
	case page < 1 || page != p.current+1 || p.current == 0:
		return 0, ErrOutOfSequence
	case p.current >= p.total:
		return 0, ErrNoMorePages
	default:
		return mergeAppend, nil
	}
}

// accepts reports whether a response for page, planned with mode, still
// fits the current position.
func (p *Pagination) accepts(page int, mode mergeMode) bool {
	if mode == mergeReplace {
		return true
	}
	return page == p.current+1
}

// commit records that page was merged and the server has total pages.
func (p *Pagination) commit(page, total int) {
	p.current = page
	p.total = total
}

// Reset forgets every loaded page.
func (p *Pagination) Reset() {
	p.current = 0
	p.total = 0
}
