package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationPlan(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		page     int
		wantMode mergeMode
		wantErr  error
	}{
		{name: "first page on empty", page: 1, wantMode: mergeReplace},
		{name: "first page replaces", current: 3, total: 5, page: 1, wantMode: mergeReplace},
		{name: "next page appends", current: 1, total: 3, page: 2, wantMode: mergeAppend},
		{name: "nothing loaded", page: 2, wantErr: ErrOutOfSequence},
		{name: "skips a page", current: 1, total: 5, page: 3, wantErr: ErrOutOfSequence},
		{name: "goes backwards", current: 3, total: 5, page: 2, wantErr: ErrOutOfSequence},
		{name: "zero page", current: 1, total: 2, page: 0, wantErr: ErrOutOfSequence},
		{name: "past last page", current: 2, total: 2, page: 3, wantErr: ErrNoMorePages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Pagination{current: tt.current, total: tt.total}
			mode, err := p.plan(tt.page)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, mode)
		})
	}
}

func TestPaginationCommitAndReset(t *testing.T) {
	p := NewPagination()
	assert.Equal(t, PageState{}, p.State())

	p.commit(1, 3)
	assert.Equal(t, PageState{CurrentPage: 1, TotalPages: 3, HasMore: true}, p.State())
	assert.True(t, p.accepts(2, mergeAppend))

	p.commit(2, 3)
	assert.False(t, p.accepts(2, mergeAppend), "a page already merged is stale")

	p.commit(3, 3)
	assert.False(t, p.State().HasMore)

	p.Reset()
	assert.Equal(t, PageState{}, p.State())
}
