// Package middleware decorates annotation stores.
package middleware

import "github.com/aretw0/plotbridge/pkg/ports"

// Middleware allows wrapping an AnnotationStore to add behavior.
type Middleware func(ports.AnnotationStore) ports.AnnotationStore

// Wrap applies mws to store. The first middleware is the outermost.
func Wrap(store ports.AnnotationStore, mws ...Middleware) ports.AnnotationStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
