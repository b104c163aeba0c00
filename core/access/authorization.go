/*Package access provides utilities for access control
 */
package access

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/sastoken/core/logger"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyAuthorization contextKey = "_authorization_"
)

// Authorization is a context object which stores authorization information
// for things and devices.
//
// Authorizations are added to a request context with
//
//	ctx = access.ContextWithAuthorization(ctx, auth)
//
// and retrieved with
//
//	auth := access.AuthorizationFromContext(ctx)
type Authorization struct {
	Roles     []string          `json:"roles"`
	Selectors map[string]string `json:"selectors,omitempty"`
}

// HasRole returns true if the authorization contains the requested role;
// otherwise it returns false.
func (a *Authorization) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, hasRole := range a.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// Selector returns the value of the requested selector; if the selector does
// not exist, it returns an empty string and false.
func (a *Authorization) Selector(name string) (string, bool) {
	if a == nil || a.Selectors == nil {
		return "", false
	}
	value, ok := a.Selectors[name]
	return value, ok
}

// ContextWithAuthorization returns a new context with the authorization added to it
func ContextWithAuthorization(ctx context.Context, a *Authorization) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, a)
}

// AuthorizationFromContext retrieves an authorization from the context
func AuthorizationFromContext(ctx context.Context) *Authorization {
	a, _ := ctx.Value(contextKeyAuthorization).(*Authorization)
	return a
}

// AuthorizationCache is an in-memory cache for authorizations, keyed by the
// credential they were derived from. It is go-routine safe.
type AuthorizationCache struct {
	mutex sync.RWMutex
	cache map[string]*Authorization
}

// NewAuthorizationCache creates a new authorization cache
func NewAuthorizationCache() *AuthorizationCache {
	return &AuthorizationCache{cache: make(map[string]*Authorization)}
}

// Read returns an authorization from the cache, or nil
func (a *AuthorizationCache) Read(key string) *Authorization {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.cache[key]
}

// Write stores an authorization in the cache
func (a *AuthorizationCache) Write(key string, auth *Authorization) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.cache[key] = auth
}

// ThingKeyHeader and ThingIdentifierHeader carry the credentials of a thing
const (
	ThingKeyHeader        = "Kurbisio-Thing-Key"
	ThingIdentifierHeader = "Kurbisio-Thing-Identifier"
)

// NewThingKeyMiddleware returns a middleware which authorizes requests carrying the
// shared thing key and a thing identifier. They get the role "thing" and a selector
// "thing" with the identifier. Authorizations are cached per thing identifier, so
// repeated requests of a thing share one read-only Authorization.
func NewThingKeyMiddleware(thingKey string) mux.MiddlewareFunc {
	return newThingKeyMiddleware(thingKey, NewAuthorizationCache())
}

func newThingKeyMiddleware(thingKey string, cache *AuthorizationCache) mux.MiddlewareFunc {
	if len(thingKey) == 0 {
		panic("thing key is missing")
	}
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(ThingKeyHeader)
			thing := r.Header.Get(ThingIdentifierHeader)
			if len(key) > 0 && len(thing) > 0 {
				if subtle.ConstantTimeCompare([]byte(key), []byte(thingKey)) == 1 {
					auth := cache.Read(thing)
					if auth == nil {
						auth = &Authorization{
							Roles:     []string{"thing"},
							Selectors: map[string]string{"thing": thing},
						}
						cache.Write(thing, auth)
					}
					r = r.WithContext(ContextWithAuthorization(r.Context(), auth))
				} else {
					logger.FromContext(r.Context()).Warnf("invalid thing key from %s", thing)
				}
			}
			h.ServeHTTP(w, r)
		})
	}
}
