package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cargodesk/consotrack/internal/auth"
	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
	"github.com/cargodesk/consotrack/internal/services/bulkops"
	"github.com/cargodesk/consotrack/internal/services/containers"
	"github.com/cargodesk/consotrack/internal/services/shipments"
)

type AuditLister interface {
	ListAuditEntries(ctx context.Context, entityType string, entityID uint64, limit, offset int) ([]*models.AuditEntry, error)
}

type API struct {
	shipments  *shipments.Service
	containers *containers.Service
	bulk       *bulkops.Service
	auditLog   AuditLister
}

func New(sh *shipments.Service, cn *containers.Service, bulk *bulkops.Service, auditLog AuditLister) *API {
	return &API{shipments: sh, containers: cn, bulk: bulk, auditLog: auditLog}
}

// Routes монтирует REST-поверхность. Аутентификация навешивается выше
// (auth.Middleware), здесь только ролевые проверки на admin-маршрутах.
func (a *API) Routes(r chi.Router) {
	r.Route("/v1/shipments", func(r chi.Router) {
		r.Post("/", a.createShipment)
		r.Get("/", a.getShipmentsByIDs)
		r.Post("/bulk", a.bulkDispatch)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getShipment)
			r.Patch("/", a.updateShipment)
			r.With(auth.RequireAdmin).Delete("/", a.deleteShipment)
			r.Post("/refresh", a.refreshShipment)
			r.Post("/attach", a.attachShipment)
			r.Post("/detach", a.detachShipment)
			r.Get("/events", a.listShipmentEvents)
			r.Post("/events", a.createShipmentEvent)
		})
	})

	r.Route("/v1/containers", func(r chi.Router) {
		r.Post("/", a.createContainer)
		r.Get("/active", a.listActiveContainers)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getContainer)
			r.Put("/location", a.updateContainerLocation)
			r.Get("/events", a.listContainerEvents)
			r.Post("/invoices", a.createInvoice)
			r.Get("/invoices", a.listInvoices)
		})
	})

	r.Get("/v1/audit", a.listAudit)
}

type createShipmentRequest struct {
	TrackingNumber    string     `json:"trackingNumber"`
	VehicleVIN        string     `json:"vehicleVin"`
	Description       *string    `json:"description,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	AutoStatusUpdate  bool       `json:"autoStatusUpdate"`
}

func (a *API) createShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sh, err := a.shipments.Create(r.Context(), actor(r), models.ShipmentCreateInput{
		TrackingNumber:    req.TrackingNumber,
		VehicleVIN:        req.VehicleVIN,
		Description:       req.Description,
		EstimatedDelivery: req.EstimatedDelivery,
		AutoStatusUpdate:  req.AutoStatusUpdate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shipmentView(sh))
}

func (a *API) getShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sh, err := a.shipments.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipmentView(sh))
}

func (a *API) getShipmentsByIDs(w http.ResponseWriter, r *http.Request) {
	raw := strings.Split(r.URL.Query().Get("ids"), ",")
	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, errs.Validation("ids must be a comma-separated list of numbers", nil))
			return
		}
		ids = append(ids, id)
	}
	shs, err := a.shipments.GetByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(shs))
	for _, sh := range shs {
		out = append(out, shipmentView(sh))
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": out})
}

type updateShipmentRequest struct {
	Description       *string    `json:"description,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	Progress          *int32     `json:"progress,omitempty"`
	CurrentLocation   *string    `json:"currentLocation,omitempty"`
	PaymentStatus     *string    `json:"paymentStatus,omitempty"`
	AssignedUserID    *string    `json:"assignedUserId,omitempty"`
	AutoStatusUpdate  *bool      `json:"autoStatusUpdate,omitempty"`
}

func (a *API) updateShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateShipmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sh, err := a.shipments.Update(r.Context(), actor(r), id, models.ShipmentPatch{
		Description:       req.Description,
		EstimatedDelivery: req.EstimatedDelivery,
		Progress:          req.Progress,
		CurrentLocation:   req.CurrentLocation,
		PaymentStatus:     req.PaymentStatus,
		AssignedUserID:    req.AssignedUserID,
		AutoStatusUpdate:  req.AutoStatusUpdate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipmentView(sh))
}

func (a *API) deleteShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.shipments.Delete(r.Context(), actor(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) refreshShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.shipments.Refresh(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

type attachRequest struct {
	ContainerID uint64 `json:"containerId"`
}

func (a *API) attachShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req attachRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.shipments.Attach(r.Context(), actor(r), id, req.ContainerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attached": true})
}

func (a *API) detachShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.shipments.Detach(r.Context(), actor(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"detached": true})
}

type createEventRequest struct {
	Status      string     `json:"status,omitempty"`
	StatusRaw   string     `json:"statusRaw"`
	Location    *string    `json:"location,omitempty"`
	Description *string    `json:"description,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Completed   bool       `json:"completed"`
	EventTime   *time.Time `json:"eventTime,omitempty"`
}

func (a *API) createShipmentEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := models.EventCreateInput{
		ParentID:    id,
		Status:      req.Status,
		StatusRaw:   req.StatusRaw,
		Location:    req.Location,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Completed:   req.Completed,
	}
	if req.EventTime != nil {
		in.EventTime = req.EventTime.UTC()
	}
	if err := a.shipments.CreateEvent(r.Context(), actor(r), in); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) listShipmentEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, offset := paging(r)
	evs, err := a.shipments.ListEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": eventViews(evs)})
}

func (a *API) bulkDispatch(w http.ResponseWriter, r *http.Request) {
	var req bulkops.Request
	if !decodeBody(w, r, &req) {
		return
	}
	// Массовое удаление — административная операция.
	if req.Action == bulkops.ActionDelete && !auth.IdentityFrom(r.Context()).Admin() {
		writeError(w, errs.New(errs.KindForbidden, "bulk delete requires admin role"))
		return
	}
	res, err := a.bulk.Dispatch(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createContainerRequest struct {
	ContainerNumber string `json:"containerNumber"`
	MaxCapacity     int32  `json:"maxCapacity"`
	Status          string `json:"status,omitempty"`
}

func (a *API) createContainer(w http.ResponseWriter, r *http.Request) {
	var req createContainerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := a.containers.Create(r.Context(), actor(r), models.ContainerCreateInput{
		ContainerNumber: req.ContainerNumber,
		MaxCapacity:     req.MaxCapacity,
		Status:          req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, containerView(c))
}

func (a *API) getContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := a.containers.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, containerView(c))
}

func (a *API) listActiveContainers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	cs, total, err := a.containers.ListActive(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(cs))
	for _, c := range cs {
		out = append(out, containerView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"containers": out, "total": total})
}

type updateLocationRequest struct {
	Location string `json:"location"`
}

func (a *API) updateContainerLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateLocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.containers.UpdateLocation(r.Context(), actor(r), id, req.Location); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (a *API) listContainerEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, offset := paging(r)
	evs, err := a.containers.ListEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": eventViews(evs)})
}

type createInvoiceRequest struct {
	Number   string     `json:"number"`
	Amount   string     `json:"amount"`
	Currency string     `json:"currency,omitempty"`
	IssuedAt *time.Time `json:"issuedAt,omitempty"`
}

func (a *API) createInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req createInvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, errs.Validation("amount must be a decimal string", map[string]string{"amount": "malformed"}))
		return
	}
	in := models.InvoiceCreateInput{
		ContainerID: id,
		Number:      req.Number,
		Amount:      amount,
		Currency:    req.Currency,
	}
	if req.IssuedAt != nil {
		in.IssuedAt = req.IssuedAt.UTC()
	}
	inv, err := a.containers.CreateInvoice(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoiceView(inv))
}

func (a *API) listInvoices(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invs, err := a.containers.ListInvoices(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(invs))
	for _, inv := range invs {
		out = append(out, invoiceView(inv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entityType")
	if entityType == "" {
		writeError(w, errs.Validation("entityType is required", nil))
		return
	}
	entityID, err := strconv.ParseUint(r.URL.Query().Get("entityId"), 10, 64)
	if err != nil {
		writeError(w, errs.Validation("entityId must be a number", nil))
		return
	}
	limit, offset := paging(r)
	entries, err := a.auditLog.ListAuditEntries(r.Context(), entityType, entityID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func actor(r *http.Request) string {
	return auth.IdentityFrom(r.Context()).ActorID
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, errs.Validation("id must be a positive number", nil))
		return 0, false
	}
	return id, true
}

func paging(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errs.Validation("request body is not valid json", nil))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

// writeError переводит доменный Kind в HTTP-статус; детали валидации
// уходят клиенту по полям.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	body := map[string]any{"error": err.Error()}

	switch errs.KindOf(err) {
	case errs.KindValidation:
		code = http.StatusBadRequest
		var e *errs.Error
		if stderrors.As(err, &e) && len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
	case errs.KindNotFound:
		code = http.StatusNotFound
	case errs.KindCapacityExceeded:
		code = http.StatusConflict
	case errs.KindForbidden:
		code = http.StatusForbidden
	default:
		// внутренности наружу не отдаём
		slog.Error("internal error", "err", err)
		body["error"] = "internal error"
	}
	writeJSON(w, code, body)
}
