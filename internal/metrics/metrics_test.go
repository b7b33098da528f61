package metrics

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	tests := []struct {
		name   string
		metric interface{}
	}{
		{"CommandExecutions", m.CommandExecutions},
		{"CommandDuration", m.CommandDuration},
		{"CommandErrors", m.CommandErrors},
		{"HTTPRequests", m.HTTPRequests},
		{"HTTPDuration", m.HTTPDuration},
		{"HTTPInFlight", m.HTTPInFlight},
		{"SessionTransitions", m.SessionTransitions},
		{"SessionActive", m.SessionActive},
		{"CatalogRefreshes", m.CatalogRefreshes},
		{"CatalogSize", m.CatalogSize},
		{"Mutations", m.Mutations},
		{"ContractDrift", m.ContractDrift},
		{"Errors", m.Errors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.metric)
		})
	}
}

func TestRecordCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCommand("login", 200*time.Millisecond, nil)
	m.RecordCommand("register", time.Second, errors.NewSelfServiceOnlyError())
	m.RecordCommand("register", time.Second, stderrors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandExecutions.WithLabelValues("login", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandExecutions.WithLabelValues("register", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandErrors.WithLabelValues("register", string(errors.ErrCodeSelfServiceOnly))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandErrors.WithLabelValues("register", "UNKNOWN")))
}

func TestRecordTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordTransition("authenticated", "login", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionActive))

	m.RecordTransition("unauthenticated", "expired", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("unauthenticated", "expired")))
}

func TestRecordRefresh(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRefresh(OutcomeSuccess, 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CatalogSize))

	m.RecordRefresh("failure", 99)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CatalogSize), "a failed refresh keeps the last size")

	m.ClearCatalog()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CatalogSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogRefreshes.WithLabelValues("failure")))
}

func TestRecordMutationDriftAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordMutation("register", OutcomeSuccess)
	m.RecordMutation("unregister", OutcomeDenied)
	m.RecordDrift("RESPONSE_MISMATCH", http.MethodGet)
	m.RecordError("session", errors.NewSessionExpiredError(nil))
	m.RecordError("session", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("register", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("unregister", OutcomeDenied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContractDrift.WithLabelValues("RESPONSE_MISMATCH", "GET")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Errors))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordCommand("x", 0, nil)
		m.RecordTransition("a", "b", true)
		m.RecordRefresh(OutcomeSuccess, 1)
		m.ClearCatalog()
		m.RecordMutation("register", OutcomeSuccess)
		m.RecordDrift("x", "GET")
		m.RecordError("x", stderrors.New("x"))
	})

	rt := http.DefaultTransport
	assert.Equal(t, rt, m.InstrumentTransport(rt))
}

func TestInstrumentTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	client := &http.Client{Transport: m.InstrumentTransport(nil)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL, nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("200", "get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("400", "delete")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPInFlight))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPDuration))
}
