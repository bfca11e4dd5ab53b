package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	UploadsTotal.WithLabelValues("accepted").Inc()
	before := testutil.ToFloat64(SessionsFinished.WithLabelValues("completed"))
	SessionsFinished.WithLabelValues("completed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SessionsFinished.WithLabelValues("completed")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "medtriage_files_uploads_total"))
	assert.True(t, strings.Contains(body, "medtriage_analysis_sessions_finished_total"))
}
