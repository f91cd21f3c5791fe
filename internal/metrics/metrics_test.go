package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFallbackCounts(t *testing.T) {
	before := testutil.ToFloat64(LLMFallbacks.WithLabelValues("plan"))
	Fallback("plan")
	assert.Equal(t, before+1, testutil.ToFloat64(LLMFallbacks.WithLabelValues("plan")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveStage("classify", time.Now())
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "workq_stage_duration_seconds"))
}
