package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/cargodesk/consotrack/internal/auth"
	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
	"github.com/cargodesk/consotrack/internal/services/bulkops"
	"github.com/cargodesk/consotrack/internal/services/containers"
	"github.com/cargodesk/consotrack/internal/services/shipments"
	"github.com/cargodesk/consotrack/internal/storage/pgstore"
)

// fakeStore закрывает все репозиторные интерфейсы сервисов разом,
// как это делает реальный pgstore.Storage.
type fakeStore struct {
	shipment  *models.Shipment
	container *models.Container

	attachErr error
	affected  int64
	deleted   []uint64
}

func (f *fakeStore) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	return &models.Shipment{ID: 1, TrackingNumber: in.TrackingNumber, VehicleVIN: in.VehicleVIN, Status: models.ShipmentStatusPending}, nil
}
func (f *fakeStore) GetShipment(ctx context.Context, id uint64) (*models.Shipment, error) {
	if f.shipment == nil || f.shipment.ID != id {
		return nil, errs.NotFound("shipment", id)
	}
	return f.shipment, nil
}
func (f *fakeStore) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if f.shipment == nil {
		return nil, nil
	}
	return []*models.Shipment{f.shipment}, nil
}
func (f *fakeStore) UpdateShipment(ctx context.Context, id uint64, p models.ShipmentPatch) (*models.Shipment, error) {
	return f.shipment, nil
}
func (f *fakeStore) DeleteShipment(ctx context.Context, id uint64) error { return nil }
func (f *fakeStore) RefreshShipment(ctx context.Context, id uint64) error {
	if f.shipment == nil || f.shipment.ID != id {
		return errs.NotFound("shipment", id)
	}
	return nil
}
func (f *fakeStore) AttachShipment(ctx context.Context, shipmentID, containerID uint64) error {
	return f.attachErr
}
func (f *fakeStore) DetachShipment(ctx context.Context, shipmentID uint64) error { return nil }
func (f *fakeStore) AppendEvent(ctx context.Context, in models.EventCreateInput) error {
	return nil
}
func (f *fakeStore) ListEvents(ctx context.Context, parentType string, parentID uint64, limit, offset int) ([]*models.Event, error) {
	return nil, nil
}

func (f *fakeStore) CreateContainer(ctx context.Context, in models.ContainerCreateInput) (*models.Container, error) {
	return &models.Container{ID: 2, ContainerNumber: in.ContainerNumber, MaxCapacity: in.MaxCapacity, Status: in.Status}, nil
}
func (f *fakeStore) GetContainer(ctx context.Context, id uint64) (*models.Container, error) {
	if f.container == nil || f.container.ID != id {
		return nil, errs.NotFound("container", id)
	}
	return f.container, nil
}
func (f *fakeStore) ListActiveContainers(ctx context.Context, limit, offset int) ([]*models.Container, int, error) {
	if f.container == nil {
		return nil, 0, nil
	}
	return []*models.Container{f.container}, 1, nil
}
func (f *fakeStore) UpdateContainerLocation(ctx context.Context, id uint64, location string, at time.Time) error {
	return nil
}
func (f *fakeStore) CreateInvoice(ctx context.Context, in models.InvoiceCreateInput) (*models.Invoice, error) {
	return &models.Invoice{ID: 3, ContainerID: in.ContainerID, Number: in.Number, Amount: in.Amount, Currency: in.Currency}, nil
}
func (f *fakeStore) ListInvoices(ctx context.Context, containerID uint64) ([]*models.Invoice, error) {
	return nil, nil
}

func (f *fakeStore) BulkUpdateStatus(ctx context.Context, ids []uint64, status string) (int64, error) {
	return f.affected, nil
}
func (f *fakeStore) BulkUpdateProgress(ctx context.Context, ids []uint64, progress int32) (int64, error) {
	return f.affected, nil
}
func (f *fakeStore) BulkAssignUser(ctx context.Context, ids []uint64, userID string) (int64, error) {
	return f.affected, nil
}
func (f *fakeStore) BulkUpdatePaymentStatus(ctx context.Context, ids []uint64, paymentStatus string) (int64, error) {
	return f.affected, nil
}
func (f *fakeStore) BulkUpdateLocation(ctx context.Context, ids []uint64, location string) (int64, error) {
	return f.affected, nil
}
func (f *fakeStore) BulkUpdateETA(ctx context.Context, ids []uint64, eta time.Time) (int64, error) {
	return f.affected, nil
}
func (f *fakeStore) BulkDeleteShipments(ctx context.Context, ids []uint64) (int64, error) {
	f.deleted = ids
	return f.affected, nil
}
func (f *fakeStore) ExportShipments(ctx context.Context, ids []uint64) ([]*pgstore.ShipmentExport, error) {
	return nil, nil
}

func (f *fakeStore) ListAuditEntries(ctx context.Context, entityType string, entityID uint64, limit, offset int) ([]*models.AuditEntry, error) {
	return []*models.AuditEntry{{ID: "a1", EntityType: entityType, EntityID: entityID}}, nil
}

func newTestServer(t *testing.T, st *fakeStore, id auth.Identity) *httptest.Server {
	t.Helper()

	a := New(
		shipments.New(st, nil, nil, 0),
		containers.New(st, nil),
		bulkops.New(st, nil),
		st,
	)

	r := chi.NewRouter()
	// подменяем auth.Middleware: кладём identity напрямую
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithIdentity(req.Context(), id)))
		})
	})
	a.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAPI_CreateShipment(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, auth.Identity{ActorID: "u1", Role: auth.RoleOperator})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/shipments", map[string]any{
		"trackingNumber": "TRK-1", "vehicleVin": "VIN-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "TRK-1", body["trackingNumber"])
	require.Equal(t, models.ShipmentStatusPending, body["status"])
}

func TestAPI_CreateShipment_ValidationFields(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, auth.Identity{ActorID: "u1"})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/shipments", map[string]any{"vehicleVin": "VIN"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body, "fields")
}

func TestAPI_GetShipment_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, auth.Identity{ActorID: "u1"})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/shipments/42", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Attach_CapacityConflict(t *testing.T) {
	st := &fakeStore{attachErr: errs.CapacityExceeded(7)}
	srv := newTestServer(t, st, auth.Identity{ActorID: "u1"})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/shipments/1/attach", map[string]any{"containerId": 7})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_DeleteShipment_RequiresAdmin(t *testing.T) {
	st := &fakeStore{shipment: &models.Shipment{ID: 1}}

	srv := newTestServer(t, st, auth.Identity{ActorID: "u1", Role: auth.RoleOperator})
	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/v1/shipments/1", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	srv = newTestServer(t, st, auth.Identity{ActorID: "root", Role: auth.RoleAdmin})
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/shipments/1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_BulkDelete_RequiresAdmin(t *testing.T) {
	st := &fakeStore{affected: 2}

	srv := newTestServer(t, st, auth.Identity{ActorID: "u1", Role: auth.RoleOperator})
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/shipments/bulk", map[string]any{
		"action": "delete", "shipmentIds": []uint64{1, 2},
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	srv = newTestServer(t, st, auth.Identity{ActorID: "root", Role: auth.RoleAdmin})
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/shipments/bulk", map[string]any{
		"action": "delete", "shipmentIds": []uint64{1, 2},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(2), body["affected"])
	require.Equal(t, []uint64{1, 2}, st.deleted)
}

func TestAPI_Bulk_UnknownAction(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, auth.Identity{ActorID: "u1"})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/shipments/bulk", map[string]any{
		"action": "explode", "shipmentIds": []uint64{1},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ActiveContainers(t *testing.T) {
	st := &fakeStore{container: &models.Container{ID: 2, ContainerNumber: "CNT-2", MaxCapacity: 4, CurrentCount: 1, Status: models.ContainerStatusLoaded}}
	srv := newTestServer(t, st, auth.Identity{ActorID: "u1"})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/containers/active?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), body["total"])
	items := body["containers"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, true, items[0].(map[string]any)["accepting"])
}

func TestAPI_ListAudit_Validation(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, auth.Identity{ActorID: "u1"})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/audit", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/audit?entityType=shipment&entityId=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "entries")
}
