package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/abkawan/banking-accounts/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	msgInvalidPayload  = "invalid request payload"
	msgUnexpectedError = "unexpected error"
	msgInvalidID       = "invalid account id"

	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Handler is for handling api requests
type Handler struct {
	accountService *service.AccountService
	validate       *validator.Validate
	logger         *slog.Logger
}

func NewHandler(accountService *service.AccountService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	validate := validator.New()
	// report violations under the json field names clients send
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		accountService: accountService,
		validate:       validate,
		logger:         logger,
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// for error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.FailMessage(message))
}

// internal failures are logged and never leak their cause
func (h *Handler) respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	respondError(w, http.StatusInternalServerError, msgUnexpectedError)
}

// decodes and validates a request body; writes the 400 itself when it returns false
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidPayload)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			respondError(w, http.StatusBadRequest, msgInvalidPayload)
			return false
		}
		respondJSON(w, http.StatusBadRequest, models.Fail(toNotifications(verrs), msgInvalidPayload))
		return false
	}
	return true
}

func toNotifications(verrs validator.ValidationErrors) []models.Notification {
	out := make([]models.Notification, 0, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", fe.Field())
		case "max":
			msg = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		case "uuid":
			msg = fmt.Sprintf("%s must be a valid uuid", fe.Field())
		default:
			msg = fmt.Sprintf("%s is invalid", fe.Field())
		}
		out = append(out, models.Notification{Key: fe.Field(), Message: msg})
	}
	return out
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// account creation
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.accountService.CreateAccount(r.Context(), req.Name, req.Document)
	if err != nil {
		h.respondInternal(w, r, err)
		return
	}
	if !res.Success {
		respondJSON(w, http.StatusBadRequest, res.Result)
		return
	}

	respondJSON(w, http.StatusCreated, models.OkOf(models.NewAccountResponse(res.Data), res.Message))
}

// handles account retrieval
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	res, err := h.accountService.GetByID(r.Context(), id)
	if err != nil {
		h.respondInternal(w, r, err)
		return
	}
	if !res.Success {
		respondJSON(w, http.StatusNotFound, res.Result)
		return
	}

	respondJSON(w, http.StatusOK, models.OkOf(models.NewAccountResponse(res.Data), res.Message))
}

// handles account search by name and document
func (h *Handler) FilterAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	res, err := h.accountService.GetByFilter(r.Context(), q.Get("name"), q.Get("document"))
	if err != nil {
		h.respondInternal(w, r, err)
		return
	}

	response := make([]models.AccountResponse, 0, len(res.Data))
	for _, a := range res.Data {
		response = append(response, models.NewAccountResponse(a))
	}
	respondJSON(w, http.StatusOK, models.OkOf(response, res.Message))
}

// handles transfers between two accounts
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Amount.Equal(req.Amount.Truncate(2)) {
		respondJSON(w, http.StatusBadRequest, models.Fail(
			[]models.Notification{{Key: "amount", Message: "amount must have at most two decimal places"}},
			msgInvalidPayload,
		))
		return
	}

	// the validator has already checked both ids
	sourceID := uuid.MustParse(req.SourceAccountID)
	destinationID := uuid.MustParse(req.DestinationAccountID)

	res, err := h.accountService.Transfer(r.Context(), sourceID, destinationID, req.Amount)
	if err != nil {
		h.respondInternal(w, r, err)
		return
	}
	if !res.Success {
		respondJSON(w, http.StatusBadRequest, res)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// handles account deactivation by document
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.DeactivateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.accountService.DeactivateByDocument(r.Context(), req.Document, req.ResponsibleUser)
	if err != nil {
		h.respondInternal(w, r, err)
		return
	}
	if !res.Success {
		respondJSON(w, http.StatusBadRequest, res)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// handles the audit trail of an account
func (h *Handler) GetAccountHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// default limit is set to 10
	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, maxHistoryLimit)
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		parsedOffset, err := strconv.Atoi(offsetStr)
		if err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	res, err := h.accountService.GetHistory(r.Context(), id, limit, offset)
	if err != nil {
		h.respondInternal(w, r, err)
		return
	}
	if !res.Success {
		respondJSON(w, http.StatusNotFound, res.Result)
		return
	}

	response := make([]models.AccountHistoryResponse, 0, len(res.Data))
	for _, hist := range res.Data {
		response = append(response, models.NewAccountHistoryResponse(hist))
	}
	respondJSON(w, http.StatusOK, models.OkOf(response, res.Message))
}

// handles health check
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sets up the API routes
func SetupRoutes(r *mux.Router, accountService *service.AccountService, logger *slog.Logger) {
	h := NewHandler(accountService, logger)

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// static paths are registered before /accounts/{id}
	r.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	r.HandleFunc("/accounts/filter", h.FilterAccounts).Methods("GET")
	r.HandleFunc("/accounts/transfer", h.Transfer).Methods("POST")
	r.HandleFunc("/accounts/deactivate", h.DeactivateAccount).Methods("PATCH")
	r.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	r.HandleFunc("/accounts/{id}/history", h.GetAccountHistory).Methods("GET")
}
