// Package httputil holds the JSON response helpers shared by the API
// handlers. Handlers go through these instead of writing to the
// ResponseWriter directly so every endpoint emits the same envelope,
// content type and error shape.
package httputil
