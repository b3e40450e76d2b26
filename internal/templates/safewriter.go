package templates

import "net/http"

// SafeWriter sends the status line and HTML content type exactly once,
// before the first body byte
type SafeWriter struct {
	w           http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// NewSafeWriter wraps w
func (t *Templates) NewSafeWriter(w http.ResponseWriter) *SafeWriter {
	return &SafeWriter{w: w, statusCode: http.StatusOK}
}

// SetStatusCode sets the status sent with the first write
func (sw *SafeWriter) SetStatusCode(code int) {
	sw.statusCode = code
}

// Header returns the underlying header map
func (sw *SafeWriter) Header() http.Header {
	return sw.w.Header()
}

// WriteHeader sends headers once. Later calls are ignored.
func (sw *SafeWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.wroteHeader = true
	sw.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	sw.w.WriteHeader(code)
}

// Write sends headers if needed, then b
func (sw *SafeWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(sw.statusCode)
	}
	return sw.w.Write(b)
}
