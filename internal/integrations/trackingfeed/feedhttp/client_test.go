package feedhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cargodesk/consotrack/internal/errs"
)

func TestClient_GetShipmentStatus_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/shipment-status", r.URL.Path)
		require.Equal(t, "demo", r.URL.Query().Get("apiKey"))
		require.Equal(t, "TRK-1", r.URL.Query().Get("trackingNumber"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "status": "ok",
  "data": {
    "statusText": "Vessel in transit to destination port",
    "location": "Atlantic Ocean",
    "progress": 55,
    "statusAt": "2025-01-01T10:00:00Z"
  }
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", 5*time.Second)
	res, err := c.GetShipmentStatus(context.Background(), "TRK-1")
	require.NoError(t, err)
	require.Equal(t, "Vessel in transit to destination port", res.StatusRaw)
	require.NotNil(t, res.Location)
	require.Equal(t, "Atlantic Ocean", *res.Location)
	require.NotNil(t, res.Progress)
	require.Equal(t, int32(55), *res.Progress)
	require.NotNil(t, res.StatusAt)
	require.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), *res.StatusAt)
}

func TestClient_GetShipmentStatus_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", 5*time.Second)
	_, err := c.GetShipmentStatus(context.Background(), "TRK-1")
	require.True(t, errs.IsKind(err, errs.KindExternalFetch))
}

func TestClient_GetShipmentStatus_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", 50*time.Millisecond)
	_, err := c.GetShipmentStatus(context.Background(), "TRK-1")
	require.True(t, errs.IsKind(err, errs.KindExternalFetch))
}

func TestClient_GetShipmentStatus_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"error"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", 5*time.Second)
	_, err := c.GetShipmentStatus(context.Background(), "TRK-1")
	require.True(t, errs.IsKind(err, errs.KindExternalFetch))
}
