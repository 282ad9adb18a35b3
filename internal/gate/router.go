package gate

import (
	"context"
	"net/http"
)

type failureSlotKey struct{}

type failureSlot struct {
	err error
}

// Router is an http.ServeMux whose handlers may return errors. Serve hands
// the error of the matched handler back to the caller, so a Router plugs
// straight into Gate.Wrap.
type Router struct {
	mux *http.ServeMux
}

func NewRouter() *Router {
	return &Router{mux: http.NewServeMux()}
}

// Handle registers h for a ServeMux pattern.
func (rt *Router) Handle(pattern string, h HandlerFunc) {
	rt.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		slot, ok := r.Context().Value(failureSlotKey{}).(*failureSlot)
		err := h(w, r)
		if ok {
			slot.err = err
		}
	})
}

// HandleStd registers a plain handler.
func (rt *Router) HandleStd(pattern string, h http.Handler) {
	rt.mux.Handle(pattern, h)
}

// Serve dispatches r and returns the handler's error, if any.
func (rt *Router) Serve(w http.ResponseWriter, r *http.Request) error {
	slot := &failureSlot{}
	rt.mux.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), failureSlotKey{}, slot)))
	return slot.err
}
