package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func contextWithQuery(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+rawQuery, nil)
	return c
}

func TestWindowFromContext(t *testing.T) {
	cases := []struct {
		query string
		want  Window
	}{
		{"", Window{Limit: 50, Offset: 0}},
		{"limit=30&offset=10", Window{Limit: 30, Offset: 10}},
		{"limit=0", Window{Limit: 50, Offset: 0}},
		{"limit=abc&offset=-4", Window{Limit: 50, Offset: 0}},
		{"limit=9999", Window{Limit: 500, Offset: 0}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, WindowFromContext(contextWithQuery(tc.query), 50, 500), tc.query)
	}
}

func TestFromContextClamps(t *testing.T) {
	q := FromContext(contextWithQuery("page=-1&size=1000"))
	assert.Equal(t, Query{Page: 1, Size: MaxSize}, q)
}
