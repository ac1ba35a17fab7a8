package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/architeacher/svc-device-manager/internal/adapters/middleware"
	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
	"github.com/architeacher/svc-device-manager/internal/service"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
)

type (
	RequestHandler struct {
		devices service.DeviceService
		logger  infrastructure.Logger
	}

	createDeviceRequest struct {
		MACAddress string `json:"mac_address"`
	}

	statusChangeRequest struct {
		Reason          string `json:"reason"`
		ExpectedVersion *int   `json:"expected_version"`
	}

	deviceResponse struct {
		ID         string    `json:"id"`
		TenantID   string    `json:"tenant_id"`
		MACAddress string    `json:"mac_address"`
		Status     string    `json:"status"`
		Version    int       `json:"version"`
		CreatedAt  time.Time `json:"created_at"`
		UpdatedAt  time.Time `json:"updated_at"`
		OwnerEmail *string   `json:"owner_email,omitempty"`
	}

	pageInfo struct {
		Limit   int      `json:"limit"`
		Offset  int      `json:"offset"`
		Total   int      `json:"total"`
		HasNext bool     `json:"has_next"`
		OrderBy []string `json:"order_by"`
	}

	dataResponse struct {
		Data any `json:"data"`
	}

	listResponse struct {
		Data []deviceResponse `json:"data"`
		Page pageInfo         `json:"page"`
	}

	errorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
)

func NewRequestHandler(devices service.DeviceService, logger infrastructure.Logger) *RequestHandler {
	return &RequestHandler{
		devices: devices,
		logger:  logger.Component("request_handler"),
	}
}

// RegisterRoutes mounts the device endpoints. Auth middleware must already be
// installed on the router.
func (h *RequestHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/devices", func(r chi.Router) {
		r.Post("/", h.CreateDevice)
		r.Get("/", h.ListDevices)
		r.Get("/projected", h.ListProjectedDevices)
		r.Get("/{deviceID}", h.GetDevice)
		r.Post("/{deviceID}/retire", h.RetireDevice)
		r.Post("/{deviceID}/activate", h.ActivateDevice)
	})
}

func (h *RequestHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "missing request identity")
		return
	}

	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	device, err := h.devices.Create(r.Context(), rc, req.MACAddress)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, dataResponse{Data: convertDeviceToResponse(*device)})
}

func (h *RequestHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "missing request identity")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := h.devices.List(r.Context(), rc, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	devices := make([]deviceResponse, 0, len(result.Devices))
	for _, device := range result.Devices {
		devices = append(devices, convertDeviceToResponse(device))
	}

	h.writeJSON(w, http.StatusOK, listResponse{
		Data: devices,
		Page: newPageInfo(limit, offset, result.Total, len(devices)),
	})
}

func (h *RequestHandler) ListProjectedDevices(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "missing request identity")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := h.devices.ListProjected(r.Context(), rc, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	devices := make([]deviceResponse, 0, len(result.Devices))
	for _, device := range result.Devices {
		devices = append(devices, convertProjectedToResponse(device))
	}

	h.writeJSON(w, http.StatusOK, listResponse{
		Data: devices,
		Page: newPageInfo(limit, offset, result.Total, len(devices)),
	})
}

func (h *RequestHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "missing request identity")
		return
	}

	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not_found", "device not found")
		return
	}

	device, err := h.devices.Get(r.Context(), rc, deviceID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, dataResponse{Data: convertDeviceToResponse(*device)})
}

func (h *RequestHandler) RetireDevice(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.devices.Retire)
}

func (h *RequestHandler) ActivateDevice(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.devices.Activate)
}

func (h *RequestHandler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, rc domain.RequestContext, deviceID uuid.UUID, reason string, expectedVersion *int) (*domain.Device, error),
) {
	rc, ok := middleware.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "missing request identity")
		return
	}

	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not_found", "device not found")
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	device, err := op(r.Context(), rc, deviceID, req.Reason, req.ExpectedVersion)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, dataResponse{Data: convertDeviceToResponse(*device)})
}

// writeDomainError is the single mapping from domain errors to HTTP statuses.
func (h *RequestHandler) writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		h.writeError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
		return
	}

	if errors.Is(err, domain.ErrConcurrentModification) {
		h.writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}

	if errors.Is(err, domain.ErrDeviceNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "device not found")
		return
	}

	if errors.Is(err, domain.ErrUnauthorized) {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	h.logger.Error().Err(err).Msg("request failed")
	h.writeError(w, http.StatusInternalServerError, "internal_server_error", "internal server error")
}

func (h *RequestHandler) writeError(w http.ResponseWriter, statusCode int, errorType, message string) {
	h.writeJSON(w, statusCode, errorResponse{Error: errorType, Message: message})
}

func (h *RequestHandler) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, errors.New("limit must be between 1 and 1000")
		}
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be zero or positive")
		}
	}

	return limit, offset, nil
}

func newPageInfo(limit, offset, total, returned int) pageInfo {
	return pageInfo{
		Limit:   limit,
		Offset:  offset,
		Total:   total,
		HasNext: offset+returned < total,
		OrderBy: []string{"created_at", "id"},
	}
}

func convertDeviceToResponse(device domain.Device) deviceResponse {
	return deviceResponse{
		ID:         device.ID.String(),
		TenantID:   device.TenantID.String(),
		MACAddress: device.MACAddress,
		Status:     string(device.Status),
		Version:    device.Version,
		CreatedAt:  device.CreatedAt,
		UpdatedAt:  device.UpdatedAt,
	}
}

func convertProjectedToResponse(device domain.ProjectedDevice) deviceResponse {
	return deviceResponse{
		ID:         device.ID.String(),
		TenantID:   device.TenantID.String(),
		MACAddress: device.MACAddress,
		Status:     string(device.Status),
		Version:    device.Version,
		CreatedAt:  device.CreatedAt,
		UpdatedAt:  device.UpdatedAt,
		OwnerEmail: device.OwnerEmail,
	}
}
