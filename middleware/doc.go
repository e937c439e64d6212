// Package middleware adapts the session gate to net/http.
//
// [Gate] reads the Authorization header, asks the engine for a decision and either
// attaches the resulting identity to the request context or writes a JSON rejection:
//
//	{"error":"TokenExpired","message":"Unauthorized - Token expired"}
//
// [StatusFor] and [WriteError] are shared with the HTTP API so that gate and lifecycle
// endpoints answer with the same codes.
//
// The package makes no decisions of its own. A gate that cannot reach its stores
// rejects with 401.
package middleware
