package middleware

import (
	"bufio"
	"net"
	"net/http"
)

type ResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	hijacker     http.Hijacker
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	wrapper := &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}

	if hijacker, ok := w.(http.Hijacker); ok {
		wrapper.hijacker = hijacker
	}

	return wrapper
}

func (w *ResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *ResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)

	return n, err
}

func (w *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacker != nil {
		return w.hijacker.Hijack()
	}

	return nil, nil, http.ErrNotSupported
}

func (w *ResponseWriter) StatusCode() int {
	return w.statusCode
}

func (w *ResponseWriter) BytesWritten() int64 {
	return w.bytesWritten
}
