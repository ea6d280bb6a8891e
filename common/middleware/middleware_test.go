package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carloz138/catalogo-magico-mx-sub005/common/middleware"
	awspkg "github.com/carloz138/catalogo-magico-mx-sub005/pkg/aws"
)

type recordingCloudWatch struct {
	mu      sync.Mutex
	metrics map[string]map[string]string
}

func (r *recordingCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range in.MetricData {
		dims := map[string]string{}
		for _, dim := range d.Dimensions {
			dims[*dim.Name] = *dim.Value
		}
		r.metrics[*d.MetricName] = dims
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (r *recordingCloudWatch) get(name string) (map[string]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dims, ok := r.metrics[name]
	return dims, ok
}

func TestMetricsMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &recordingCloudWatch{metrics: map[string]map[string]string{}}
	client := awspkg.NewMetricsClientFromAPI(fake, "Catalogo/Test", true)

	r := gin.New()
	r.Use(middleware.MetricsMiddleware(client, "ingestion-service"))
	r.GET("/ingestions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingestions/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Eventually(t, func() bool {
		_, ok := fake.get(awspkg.MetricHTTP4xx)
		return ok
	}, time.Second, 10*time.Millisecond)

	dims, ok := fake.get(awspkg.MetricHTTPRequests)
	require.True(t, ok)
	assert.Equal(t, "/ingestions/:id", dims["Path"])
	assert.Equal(t, "4xx", dims["Status"])
	assert.Equal(t, "ingestion-service", dims["Service"])
	_, has5xx := fake.get(awspkg.MetricHTTP5xx)
	assert.False(t, has5xx)
}

func TestMetricsMiddlewareDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.MetricsMiddleware(nil, "ingestion-service"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORS("https://panel.example.com/, https://admin.example.com"))
	r.GET("/ingestions/template", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ingestions/template", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://panel.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ingestions/template", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Timeout(time.Minute))

	var hasDeadline bool
	r.GET("/x", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, hasDeadline)
}
