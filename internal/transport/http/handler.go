package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tunelock/internal/authz"
	"tunelock/internal/domain"
	obsmw "tunelock/internal/observability/middleware"
	"tunelock/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type handler struct {
	licenses *service.LicenseService
	delivery *service.DeliveryService
}

type issueLicenseRequest struct {
	TransactionID string            `json:"transactionId"`
	DeviceID      string            `json:"deviceId"`
	Device        domain.DeviceInfo `json:"device"`
}

func (h *handler) issueLicense(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req issueLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	txID, err := uuid.Parse(strings.TrimSpace(req.TransactionID))
	if err != nil {
		http.Error(w, "invalid transactionId", http.StatusBadRequest)
		return
	}
	info := req.Device
	if info.DeviceID == "" {
		info.DeviceID = req.DeviceID
	}

	lic, err := h.licenses.Issue(r.Context(), txID, userID, info)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

func (h *handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	deviceID := strings.TrimSpace(r.Header.Get("X-Device-ID"))
	if deviceID == "" {
		http.Error(w, "missing X-Device-ID", http.StatusBadRequest)
		return
	}
	lics, err := h.licenses.ListForDevice(r.Context(), userID, deviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"licenses": lics})
}

func (h *handler) getLicense(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "licenseID"))
	if err != nil {
		http.Error(w, "invalid licenseID", http.StatusBadRequest)
		return
	}
	lic, err := h.licenses.Get(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

func (h *handler) revokeLicense(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "licenseID"))
	if err != nil {
		http.Error(w, "invalid licenseID", http.StatusBadRequest)
		return
	}
	if err := h.licenses.Revoke(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) packageDownload(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}
	var info domain.DeviceInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	pd, err := h.delivery.PackageDownload(r.Context(), mediaID, userID, info)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"download":       pd.Download,
		"encryptedData":  base64.StdEncoding.EncodeToString(pd.Ciphertext),
		"encryptionInfo": pd.Envelope,
	})
}

type openDownloadRequest struct {
	LicenseKey    string `json:"licenseKey"`
	EncryptedData string `json:"encryptedData"`
}

func (h *handler) openDownload(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	downloadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid download id", http.StatusBadRequest)
		return
	}
	var req openDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.EncryptedData)
	if err != nil {
		http.Error(w, "invalid encryptedData", http.StatusBadRequest)
		return
	}

	plaintext, err := h.delivery.OpenDownload(r.Context(), downloadID, userID, req.LicenseKey, ciphertext)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": base64.StdEncoding.EncodeToString(plaintext),
	})
}

func (h *handler) listDownloads(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	dls, err := h.delivery.Deliveries(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloads": dls})
}

func (h *handler) streamMedia(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	mediaID, err := uuid.Parse(chi.URLParam(r, "mediaID"))
	if err != nil {
		http.Error(w, "invalid mediaID", http.StatusBadRequest)
		return
	}
	info := domain.DeviceInfo{
		DeviceID:   strings.TrimSpace(r.Header.Get("X-Device-ID")),
		LicenseKey: strings.TrimSpace(r.Header.Get("X-License-Key")),
	}

	stream, err := h.delivery.Stream(r.Context(), mediaID, userID, info, r.Header.Get("Range"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stream.Body.Close()

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(stream.ContentLength(), 10))
	if stream.Partial {
		w.Header().Set("Content-Range", stream.ContentRange())
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if _, err := io.Copy(w, stream.Body); err != nil {
		// Client went away mid-transfer; nothing to send back.
		slog.Debug("stream copy interrupted", "media_id", mediaID, "error", err,
			"request_id", obsmw.RequestIDFromContext(r.Context()))
		return
	}
	if err := h.delivery.RecordStream(r.Context(), mediaID, userID, info); err != nil {
		slog.Warn("stream audit record failed", "media_id", mediaID, "error", err)
	}
}

func (h *handler) validateLicense(w http.ResponseWriter, r *http.Request) {
	_, ok := authz.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	mediaID, err := uuid.Parse(chi.URLParam(r, "mediaID"))
	if err != nil {
		http.Error(w, "invalid mediaID", http.StatusBadRequest)
		return
	}

	valid, err := h.licenses.Validate(r.Context(), mediaID,
		strings.TrimSpace(r.Header.Get("X-Device-ID")),
		strings.TrimSpace(r.Header.Get("X-License-Key")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRange):
		status = http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, domain.ErrAuthenticationFailed):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "path", r.URL.Path,
			"request_id", obsmw.RequestIDFromContext(r.Context()))
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}
