package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]int{"doubled": in["n"] * 2})
	}))
	defer srv.Close()

	var out struct {
		Doubled int `json:"doubled"`
	}
	err := NewClient(nil).PostJSON(context.Background(), srv.URL+"/x", map[string]int{"n": 21}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Doubled)
}

func TestGetJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("home_id"))
		http.Error(w, "no such home", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewClient(nil).GetJSON(context.Background(), srv.URL+"/homes/get", url.Values{"home_id": {"7"}}, nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "no such home", statusErr.Body)
}

func TestStaticResolver(t *testing.T) {
	base, err := StaticResolver("http://wallet:8080/").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://wallet:8080", base)

	_, err = StaticResolver("").Resolve(context.Background())
	require.Error(t, err)
}
