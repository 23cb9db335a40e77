package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"orbitdrive/internal/auth"
	"orbitdrive/internal/domain"
	"orbitdrive/internal/service"
)

type QuotaHandler struct {
	quotaService *service.QuotaService
}

func NewQuotaHandler(quotaService *service.QuotaService) *QuotaHandler {
	return &QuotaHandler{
		quotaService: quotaService,
	}
}

func (h *QuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	quotaInfo, err := h.quotaService.GetQuotaInfo(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "quota", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quotaInfo)
}

// ProvisionUser registers a user with a fresh quota cycle. Called by the
// identity service on sign-up; idempotent.
func (h *QuotaHandler) ProvisionUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	quota, err := h.quotaService.Provision(r.Context(), req.UserID, req.Username)
	if err != nil {
		writeServiceError(w, "provision", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(quota)
}

// UpdateQuotaLimit is the admin endpoint for adjusting a user's cap.
func (h *QuotaHandler) UpdateQuotaLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		NewLimit int64  `json:"new_limit"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.quotaService.UpdateQuotaLimit(r.Context(), req.UserID, req.NewLimit); err != nil {
		writeServiceError(w, "quota limit", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetDailyReport lists users by bytes added on a day (default today, UTC).
func (h *QuotaHandler) GetDailyReport(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	day := time.Now().UTC()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid day, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	entries, err := h.quotaService.DailySnapshot(r.Context(), day)
	if err != nil {
		writeServiceError(w, "daily report", err)
		return
	}
	if entries == nil {
		entries = []domain.DailyUsage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
