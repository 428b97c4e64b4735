package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dashnorm/internal"
)

func TestObserveRun(t *testing.T) {
	r := New()
	stats := internal.NormalizeStats{ParentRows: 3, SubRecords: 5, MalformedSegments: 2, DuplicateIndices: 1}

	r.ObserveRun("participants", stats, false)
	r.ObserveRun("participants", stats, true)
	r.ObserveFailure("guns")

	if got := testutil.ToFloat64(r.subRecords.WithLabelValues("participants")); got != 5 {
		t.Fatalf("sub records=%v", got)
	}
	if got := testutil.ToFloat64(r.anomalies.WithLabelValues("participants", "malformed_segment")); got != 2 {
		t.Fatalf("malformed=%v", got)
	}
	if got := testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")); got != 1 {
		t.Fatalf("hits=%v", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("guns", "error")); got != 1 {
		t.Fatalf("failures=%v", got)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.ObserveRun("guns", internal.NormalizeStats{SubRecords: 1}, false)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `dashnorm_sub_records_total{preset="guns"} 1`) {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
