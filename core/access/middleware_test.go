package access

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThingKeyMiddlewareCachesAuthorizations(t *testing.T) {
	cache := NewAuthorizationCache()
	router := mux.NewRouter()
	router.Use(newThingKeyMiddleware("secret", cache))
	var got []*Authorization
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, AuthorizationFromContext(r.Context()))
	})

	request := func(key, thing string) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(ThingKeyHeader, key)
		r.Header.Set(ThingIdentifierHeader, thing)
		router.ServeHTTP(httptest.NewRecorder(), r)
	}
	request("secret", "t1")
	request("secret", "t1")
	request("secret", "t2")
	request("wrong", "t3")

	require.Len(t, got, 4)
	require.NotNil(t, got[0])
	assert.Same(t, got[0], got[1])
	assert.Same(t, got[0], cache.Read("t1"))
	assert.NotSame(t, got[0], got[2])
	thing, _ := got[2].Selector("thing")
	assert.Equal(t, "t2", thing)
	assert.Nil(t, got[3])
	assert.Nil(t, cache.Read("t3"), "rejected things are not cached")
}
