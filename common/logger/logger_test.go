package logger_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carloz138/catalogo-magico-mx-sub005/common/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWithWriterTeesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitializeWithWriter("production", &buf))

	logger.Info(logger.WithRequestID(context.Background(), "job-1"), "ingestion started")
	logger.Sync()

	assert.Contains(t, buf.String(), `"msg":"ingestion started"`)
	assert.Contains(t, buf.String(), `"request_id":"job-1"`)
}

func TestRequestIDFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, "unknown", logger.RequestID(context.Background()))
}

func TestRequestLoggerPropagatesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(logger.RequestLogger())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}
