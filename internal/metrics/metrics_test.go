package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveClassify(t *testing.T) {
	before := testutil.ToFloat64(classifyTotal.WithLabelValues("market_prices", "keyword"))
	ObserveClassify("market_prices", "keyword", time.Now())
	after := testutil.ToFloat64(classifyTotal.WithLabelValues("market_prices", "keyword"))
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func TestObserveSourceCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(sourceErrors.WithLabelValues("pest_control_data"))
	ObserveSource("pest_control_data", time.Now(), 0, errors.New("timeout"))
	if got := testutil.ToFloat64(sourceErrors.WithLabelValues("pest_control_data")); got != before+1 {
		t.Errorf("errors = %v, want %v", got, before+1)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	IncWorkflowTransition("completed")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "agri_workflow_transitions_total") {
		t.Error("metrics output missing workflow transitions")
	}
}
