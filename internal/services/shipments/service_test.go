package shipments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cargodesk/consotrack/internal/audit"
	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
)

type fakeRepo struct {
	createIn  models.ShipmentCreateInput
	createOut *models.Shipment
	createErr error

	getOut *models.Shipment
	getErr error

	getIDsIn  []uint64
	getIDsOut []*models.Shipment

	updateIn  models.ShipmentPatch
	updateOut *models.Shipment
	updateErr error

	deletedID  uint64
	refreshID  uint64
	attachedTo uint64
	detachedID uint64

	appended []models.EventCreateInput
	events   []*models.Event
}

func (f *fakeRepo) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	f.createIn = in
	return f.createOut, f.createErr
}
func (f *fakeRepo) GetShipment(ctx context.Context, id uint64) (*models.Shipment, error) {
	return f.getOut, f.getErr
}
func (f *fakeRepo) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	f.getIDsIn = ids
	return f.getIDsOut, nil
}
func (f *fakeRepo) UpdateShipment(ctx context.Context, id uint64, p models.ShipmentPatch) (*models.Shipment, error) {
	f.updateIn = p
	return f.updateOut, f.updateErr
}
func (f *fakeRepo) DeleteShipment(ctx context.Context, id uint64) error {
	f.deletedID = id
	return nil
}
func (f *fakeRepo) RefreshShipment(ctx context.Context, id uint64) error {
	f.refreshID = id
	return nil
}
func (f *fakeRepo) AttachShipment(ctx context.Context, shipmentID, containerID uint64) error {
	f.attachedTo = containerID
	return nil
}
func (f *fakeRepo) DetachShipment(ctx context.Context, shipmentID uint64) error {
	f.detachedID = shipmentID
	return nil
}
func (f *fakeRepo) AppendEvent(ctx context.Context, in models.EventCreateInput) error {
	f.appended = append(f.appended, in)
	return nil
}
func (f *fakeRepo) ListEvents(ctx context.Context, parentType string, parentID uint64, limit, offset int) ([]*models.Event, error) {
	return f.events, nil
}

type fakeCache struct {
	m map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.m, key)
	return nil
}

type recordingAuditor struct {
	changes []audit.Change
}

func (a *recordingAuditor) Record(ctx context.Context, ch audit.Change) {
	a.changes = append(a.changes, ch)
}

func TestService_Create_validate(t *testing.T) {
	s := New(&fakeRepo{}, nil, nil, 0)

	_, err := s.Create(context.Background(), "u1", models.ShipmentCreateInput{VehicleVIN: "VIN"})
	require.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = s.Create(context.Background(), "u1", models.ShipmentCreateInput{TrackingNumber: "TRK"})
	require.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = s.Create(context.Background(), "u1", models.ShipmentCreateInput{TrackingNumber: "  ", VehicleVIN: "VIN"})
	require.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestService_Create_auditsAndCaches(t *testing.T) {
	r := &fakeRepo{createOut: &models.Shipment{ID: 5, TrackingNumber: "TRK-5"}}
	c := &fakeCache{m: map[string][]byte{}}
	a := &recordingAuditor{}
	s := New(r, c, a, time.Minute)

	sh, err := s.Create(context.Background(), "u1", models.ShipmentCreateInput{TrackingNumber: "TRK-5", VehicleVIN: "VIN"})
	require.NoError(t, err)
	require.Equal(t, uint64(5), sh.ID)

	require.Len(t, a.changes, 1)
	require.Equal(t, models.AuditActionCreate, a.changes[0].Action)
	require.Equal(t, "u1", a.changes[0].PerformedBy)
	require.Contains(t, c.m, "shipment:5:current")
}

func TestService_Get_cacheHit(t *testing.T) {
	r := &fakeRepo{getErr: errs.NotFound("shipment", 7)}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(r, c, nil, 10*time.Minute)

	want := &models.Shipment{ID: 7, TrackingNumber: "TRK-7"}
	b, _ := json.Marshal(want)
	c.m["shipment:7:current"] = b

	out, err := s.Get(context.Background(), 7)
	require.NoError(t, err) // БД не трогали
	require.Equal(t, "TRK-7", out.TrackingNumber)
}

func TestService_GetByIDs_missGoesToDB(t *testing.T) {
	r := &fakeRepo{getIDsOut: []*models.Shipment{{ID: 2}, {ID: 1}}}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(r, c, nil, time.Minute)

	out, err := s.GetByIDs(context.Background(), []uint64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, r.getIDsIn)
	// порядок ответа — порядок ids, несуществующий 3 молча выпал
	require.Len(t, out, 2)
	require.Equal(t, uint64(1), out[0].ID)
	require.Equal(t, uint64(2), out[1].ID)
}

func TestService_Update_validatesProgress(t *testing.T) {
	s := New(&fakeRepo{}, nil, nil, 0)
	bad := int32(120)
	_, err := s.Update(context.Background(), "u1", 1, models.ShipmentPatch{Progress: &bad})
	require.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestService_Update_recordsBeforeAfter(t *testing.T) {
	r := &fakeRepo{
		getOut:    &models.Shipment{ID: 1, Progress: 10},
		updateOut: &models.Shipment{ID: 1, Progress: 50},
	}
	a := &recordingAuditor{}
	s := New(r, nil, a, 0)

	p := int32(50)
	sh, err := s.Update(context.Background(), "u1", 1, models.ShipmentPatch{Progress: &p})
	require.NoError(t, err)
	require.Equal(t, int32(50), sh.Progress)

	require.Len(t, a.changes, 1)
	require.NotNil(t, a.changes[0].Old)
	require.NotNil(t, a.changes[0].New)
}

func TestService_Delete_invalidatesCache(t *testing.T) {
	r := &fakeRepo{getOut: &models.Shipment{ID: 9, TrackingNumber: "TRK-9"}}
	c := &fakeCache{m: map[string][]byte{"shipment:9:current": []byte("{}")}}
	a := &recordingAuditor{}
	s := New(r, c, a, time.Minute)

	require.NoError(t, s.Delete(context.Background(), "admin", 9))
	require.Equal(t, uint64(9), r.deletedID)
	require.NotContains(t, c.m, "shipment:9:current")
	require.Equal(t, models.AuditActionDelete, a.changes[0].Action)
}

func TestService_Refresh_validate(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, nil, 0)
	require.Error(t, s.Refresh(context.Background(), 0))

	require.NoError(t, s.Refresh(context.Background(), 10))
	require.Equal(t, uint64(10), r.refreshID)
}

func TestService_AttachDetach(t *testing.T) {
	r := &fakeRepo{}
	c := &fakeCache{m: map[string][]byte{"shipment:3:current": []byte("{}")}}
	s := New(r, c, nil, time.Minute)

	require.Error(t, s.Attach(context.Background(), "u1", 0, 1))
	require.NoError(t, s.Attach(context.Background(), "u1", 3, 11))
	require.Equal(t, uint64(11), r.attachedTo)
	require.NotContains(t, c.m, "shipment:3:current")

	require.NoError(t, s.Detach(context.Background(), "u1", 3))
	require.Equal(t, uint64(3), r.detachedID)
}

func TestService_CreateEvent(t *testing.T) {
	r := &fakeRepo{getOut: &models.Shipment{ID: 4}}
	s := New(r, nil, nil, 0)

	err := s.CreateEvent(context.Background(), "u1", models.EventCreateInput{ParentID: 4, Status: "LOST"})
	require.True(t, errs.IsKind(err, errs.KindValidation))

	err = s.CreateEvent(context.Background(), "u1", models.EventCreateInput{ParentID: 4, Status: models.ShipmentStatusInTransit, StatusRaw: "loaded on vessel"})
	require.NoError(t, err)
	require.Len(t, r.appended, 1)
	require.Equal(t, models.EventParentShipment, r.appended[0].ParentType)
	require.False(t, r.appended[0].EventTime.IsZero())
}

func TestService_CreateEvent_parentMustExist(t *testing.T) {
	r := &fakeRepo{getErr: errs.NotFound("shipment", 99)}
	s := New(r, nil, nil, 0)

	err := s.CreateEvent(context.Background(), "u1", models.EventCreateInput{ParentID: 99, StatusRaw: "x"})
	require.True(t, errs.IsKind(err, errs.KindNotFound))
	require.Empty(t, r.appended)
}
