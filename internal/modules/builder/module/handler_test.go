package module

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/pkg/dbtest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestHandlerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := dbtest.Open(t)
	r := gin.New()
	allow := func(c *gin.Context) { c.Next() }
	NewHandler(NewService(db)).RegisterRoutes(r.Group("/api/v1"), allow)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
		return w
	}

	w := do(http.MethodPost, "/api/v1/modules", `{"name":"Ops"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := gjson.Get(w.Body.String(), "id").String()
	require.NotEmpty(t, id)

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/api/v1/modules", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/v1/modules/nope", "").Code)

	w = do(http.MethodGet, "/api/v1/modules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ops", gjson.Get(w.Body.String(), "data.0.name").String())

	require.NoError(t, db.Create(&models.FormModel{ModuleID: id, Name: "Assets"}).Error)
	assert.Equal(t, http.StatusConflict, do(http.MethodDelete, "/api/v1/modules/"+id, "").Code)
}
