package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/flows"
	"github.com/copyleftdev/ssoscry/internal/tasks"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskService is the part of the task manager the API uses.
type TaskService interface {
	SubmitTask(task *taskstypes.Task) error
	GetTaskStatus(id uuid.UUID) (*taskstypes.Task, error)
	Provide2FACode(id uuid.UUID, code string) error
}

// CodeSource hands out one-time codes by provider name.
type CodeSource interface {
	Code(ctx context.Context, provider string) (string, error)
}

type APIHandler struct {
	cfg         *config.Config
	taskManager TaskService
	codes       CodeSource
	logger      *zap.Logger
}

func NewAPIHandler(cfg *config.Config, tm TaskService, codes CodeSource, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		cfg:         cfg,
		taskManager: tm,
		codes:       codes,
		logger:      logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SubmitTaskRequest struct {
	Name          string                       `json:"name,omitempty"`
	Actions       []taskstypes.Action          `json:"actions"`
	Credentials   *credentialsRequest          `json:"credentials,omitempty"`
	TwoFactorAuth taskstypes.TwoFactorAuthInfo `json:"two_factor_auth"`
	CallbackURL   string                       `json:"callback_url,omitempty"`
}

type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
}

type Provide2FACodeRequest struct {
	Code string `json:"code"`
}

type StartLoginRequest struct {
	CallbackURL string `json:"callback_url,omitempty"`
}

type MFACodeRequest struct {
	Provider string `json:"provider,omitempty"`
}

type MFACodeResponse struct {
	Code string `json:"code"`
}

func (h *APIHandler) HandleSubmitTask(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}

	if len(req.Actions) == 0 {
		respondError(w, http.StatusBadRequest, "Task must contain at least one action")
		return
	}

	var creds *taskstypes.Credentials
	if req.Credentials != nil {
		creds = &taskstypes.Credentials{Username: req.Credentials.Username, Password: req.Credentials.Password}
	}
	task := taskstypes.NewTask(req.Name, req.Actions, creds, req.TwoFactorAuth, req.CallbackURL)
	h.submit(w, task)
}

func (h *APIHandler) HandleStartLogin(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req StartLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}

	flow := chi.URLParam(r, "flow")
	task, err := flows.Build(flow, h.cfg)
	if err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	task.CallbackURL = req.CallbackURL
	h.submit(w, task)
}

func (h *APIHandler) submit(w http.ResponseWriter, task *taskstypes.Task) {
	if err := h.taskManager.SubmitTask(task); err != nil {
		h.logger.Error("Error submitting task", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, tasks.ErrShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "Failed to submit task: %v", err)
		return
	}

	h.logger.Info("Submitted new task", zap.Stringer("task_id", task.ID), zap.String("task", task.Name))
	respondJSON(w, http.StatusAccepted, SubmitTaskResponse{TaskID: task.ID.String()})
}

func (h *APIHandler) HandleGetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task ID format: %v", err)
		return
	}

	task, err := h.taskManager.GetTaskStatus(taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error("Error retrieving task status", zap.Stringer("task_id", taskID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to retrieve task status")
		return
	}

	respondJSON(w, http.StatusOK, task)
}

func (h *APIHandler) HandleProvide2FACode(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task ID format: %v", err)
		return
	}

	defer r.Body.Close()
	var req Provide2FACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "2FA code cannot be empty")
		return
	}

	if err := h.taskManager.Provide2FACode(taskID, req.Code); err != nil {
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			respondError(w, http.StatusNotFound, "%v", err)
		case errors.Is(err, tasks.ErrNotWaitingCode):
			respondError(w, http.StatusConflict, "%v", err)
		default:
			h.logger.Error("Error providing 2FA code", zap.Stringer("task_id", taskID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "%v", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "2FA code received"})
}

func (h *APIHandler) HandleMFACode(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req MFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}
	if h.codes == nil {
		respondError(w, http.StatusServiceUnavailable, "No MFA provider configured")
		return
	}

	code, err := h.codes.Code(r.Context(), req.Provider)
	if err != nil {
		h.logger.Warn("MFA code retrieval failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, MFACodeResponse{Code: code})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to marshal JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	response, _ := json.Marshal(map[string]string{"error": fmt.Sprintf(format, args...)})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}
