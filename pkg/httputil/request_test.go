package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Email string `json:"email"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "a@b.com", dest.Email)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"mail":"a@b.com"}`))
	assert.Error(t, ParseJSON(r, &dest))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	assert.False(t, ParseJSONOrError(w, r, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/users/u1", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "u1"})

	id, err := ParsePathString(r, "id")
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, r, "hash")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryBool(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?pending=true&bad=maybe", nil)

	v, err := ParseQueryBool(r, "pending", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(r, "missing", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = ParseQueryBool(r, "bad", false)
	assert.Error(t, err)
}
