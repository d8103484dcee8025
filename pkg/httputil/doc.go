// Package httputil provides the JSON request and response helpers and the
// middleware shared by the HTTP handlers.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteAppError(w, r, err)
//
// WriteAppError maps apperr kinds to status codes: Validation 422 (with the
// offending field), NotFound 404, Conflict 409 and everything else 500.
// Internal errors are logged and their message is not exposed.
//
// # Request Parsing
//
//	var req CreateInvitationRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
