// Package httputil provides the JSON response helpers shared by the ops and
// config endpoints, so every handler returns the same error envelope.
package httputil
