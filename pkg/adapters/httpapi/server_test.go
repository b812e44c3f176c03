package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/churn/internal/telemetry"
	"github.com/aretw0/churn/pkg/adapters/httpapi"
	"github.com/aretw0/churn/pkg/adapters/memory"
	"github.com/aretw0/churn/pkg/core"
)

func setup(t *testing.T, seed int) (*core.Coordinator, http.Handler) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	c := core.NewCoordinator(store, core.Config{
		SeedCount: seed,
		Metrics:   telemetry.NewMetrics(reg),
	})
	return c, httpapi.NewHandler(c, httpapi.WithGatherer(reg))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth_UnavailableUntilSeeded(t *testing.T) {
	c, h := setup(t, 10)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/healthz", "").Code)

	_, err := c.SeedIfEmpty(t.Context())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestRecords_Paging(t *testing.T) {
	c, h := setup(t, 30)
	_, err := c.SeedIfEmpty(t.Context())
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/records?offset=25&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Offset  int `json:"offset"`
		Limit   int `json:"limit"`
		Total   int `json:"total"`
		Records []struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 25, page.Offset)
	assert.Equal(t, 30, page.Total)
	assert.Len(t, page.Records, 5)
	assert.Equal(t, "Firstname", page.Records[0].FirstName)

	rec = do(t, h, http.MethodGet, "/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, httpapi.DefaultPageLimit, page.Limit)
	assert.Len(t, page.Records, 30)
}

func TestRecords_DefaultsWithoutQuery(t *testing.T) {
	c, h := setup(t, 3)
	_, err := c.SeedIfEmpty(t.Context())
	require.NoError(t, err)

	tests := []struct {
		name        string
		target      string
		wantOffset  int
		wantLimit   int
		wantRecords int
	}{
		{name: "No Query", target: "/records", wantOffset: 0, wantLimit: httpapi.DefaultPageLimit, wantRecords: 3},
		{name: "Only Limit", target: "/records?limit=2", wantOffset: 0, wantLimit: 2, wantRecords: 2},
		{name: "Only Offset", target: "/records?offset=1", wantOffset: 1, wantLimit: httpapi.DefaultPageLimit, wantRecords: 2},
		{name: "Limit Capped", target: "/records?limit=5000", wantOffset: 0, wantLimit: httpapi.MaxPageLimit, wantRecords: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var page struct {
				Offset  int               `json:"offset"`
				Limit   int               `json:"limit"`
				Total   int               `json:"total"`
				Records []json.RawMessage `json:"records"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, tt.wantOffset, page.Offset)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, 3, page.Total)
			assert.Len(t, page.Records, tt.wantRecords)
		})
	}
}

func TestRecords_ColorHex(t *testing.T) {
	c, h := setup(t, 0)
	require.NoError(t, c.Store().InsertMany(t.Context(), core.Record{}.WithColor(1)))

	rec := do(t, h, http.MethodGet, "/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"color_hex":"`+core.Palette[1]+`"`)
}

func TestRecords_BadQuery(t *testing.T) {
	_, h := setup(t, 0)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/records?offset=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/records?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/records?offset=-1", "").Code)
}

func TestVisibleRange_Lifecycle(t *testing.T) {
	c, h := setup(t, 0)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/visible-range", "").Code)

	rec := do(t, h, http.MethodPut, "/visible-range", `{"lo": 10, "hi": 20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r, ok := c.VisibleRange()
	require.True(t, ok)
	assert.Equal(t, core.Range{Lo: 10, Hi: 20}, r)

	rec = do(t, h, http.MethodGet, "/visible-range", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lo": 10, "hi": 20}`, rec.Body.String())

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPut, "/visible-range", `{"lo": 5, "hi": 1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/visible-range", `nope`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/visible-range", "").Code)
	_, ok = c.VisibleRange()
	assert.False(t, ok)
}

func TestState(t *testing.T) {
	_, h := setup(t, 0)
	rec := do(t, h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "coordinator")
	assert.Contains(t, body, "store")
}

func TestMetrics(t *testing.T) {
	c, h := setup(t, 0)
	require.NoError(t, c.Enqueue(core.Insert(core.Record{})))
	_, err := c.FlushOnce(t.Context())
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "churn_mutations_enqueued_total")
	assert.Contains(t, rec.Body.String(), "churn_flush_cycles_total")
}
