// Package middleware holds transport-level middleware shared across
// routes.
package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// Compression provides gzip response compression with pooled writers.
type Compression struct {
	level int
	pool  sync.Pool
}

// NewCompression creates compression middleware at the given gzip level.
func NewCompression(level int) *Compression {
	cm := &Compression{level: level}
	cm.pool = sync.Pool{
		New: func() interface{} {
			gz, _ := gzip.NewWriterLevel(io.Discard, level)
			return gz
		},
	}
	return cm
}

// Handler compresses responses for clients that accept gzip.
func (cm *Compression) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		wrapped := &gzipWriter{ResponseWriter: c.Writer, gz: gz}
		c.Writer = wrapped

		defer func() {
			gz.Close()
			c.Header("Content-Length", "")
			cm.pool.Put(gz)
		}()

		c.Next()
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	return w.gz.Write(data)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.gz.Write([]byte(s))
}
