package shared

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	empty := NewPagination(0, 0, 0)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 20, empty.PerPage)
	assert.False(t, empty.HasNext())
}

func TestPageFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/clients?page=3&per_page=500", nil)
	page := PageFromRequest(req)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 100, page.Limit())
	assert.Equal(t, 200, page.Offset())

	assert.Equal(t, 0, PageFromRequest(httptest.NewRequest("GET", "/clients?page=abc", nil)).Offset())
}
