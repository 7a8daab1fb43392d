package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"compow-alarm/internal/models"
	"compow-alarm/internal/repository"
	"compow-alarm/internal/state"
	"compow-alarm/internal/trigger"
)

// AlarmController 报警控制入口（由编排器实现）
type AlarmController interface {
	TriggerAlarm(ctx context.Context, message string) error
	StopAlarm(ctx context.Context) error
	Active() bool
}

// AlertHistory 报警日志查询入口
type AlertHistory interface {
	GetActiveAlert(ctx context.Context) (*models.AlertLog, error)
	GetRecentAlerts(ctx context.Context, limit int) ([]*models.AlertLog, error)
	CountAlerts(ctx context.Context) (int, error)
}

// Server 控制面 HTTP 服务
type Server struct {
	logger       *zap.Logger
	alarm        AlarmController
	history      AlertHistory
	contactRepo  *repository.ContactRepository
	userRepo     *repository.UserRepository
	stateManager *state.StateManager
	detector     *trigger.DoublePressDetector
	router       chi.Router
}

// NewServer 创建控制面服务并注册路由
func NewServer(
	logger *zap.Logger,
	alarm AlarmController,
	history AlertHistory,
	contactRepo *repository.ContactRepository,
	userRepo *repository.UserRepository,
	stateManager *state.StateManager,
	detector *trigger.DoublePressDetector,
) *Server {
	s := &Server{
		logger:       logger,
		alarm:        alarm,
		history:      history,
		contactRepo:  contactRepo,
		userRepo:     userRepo,
		stateManager: stateManager,
		detector:     detector,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/alarm", func(r chi.Router) {
			r.Post("/trigger", s.handleTrigger)
			r.Post("/stop", s.handleStop)
			r.Get("/status", s.handleStatus)
			r.Get("/history", s.handleHistory)
		})

		r.Post("/input/key", s.handleKeyInput)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", s.handleListContacts)
			r.Post("/", s.handleCreateContact)
			r.Patch("/{id}/enabled", s.handleSetContactEnabled)
			r.Delete("/{id}", s.handleDeleteContact)
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", s.handleGetPreferences)
			r.Put("/", s.handleSetPreferences)
		})

		r.Route("/user", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Put("/", s.handleUpsertUser)
		})
	})

	s.router = r
	return s
}

// Handler 返回根处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// ============================================
// 报警
// ============================================

type triggerRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := s.alarm.TriggerAlarm(r.Context(), req.Message); err != nil {
		s.logger.Error("Trigger failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to trigger alarm")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": s.alarm.Active(),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.alarm.StopAlarm(r.Context()); err != nil {
		s.logger.Error("Stop failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to stop alarm")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": s.alarm.Active(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"active": s.alarm.Active(),
	}

	if active, err := s.history.GetActiveAlert(r.Context()); err != nil {
		s.logger.Warn("Failed to load active alert", zap.Error(err))
	} else if active != nil {
		response["alert"] = active
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetRecentAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to load alert history", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	total, err := s.history.CountAlerts(r.Context())
	if err != nil {
		s.logger.Warn("Failed to count alerts", zap.Error(err))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": entries,
		"total":  total,
	})
}

// ============================================
// 按键输入
// ============================================

type keyInputRequest struct {
	Key    string `json:"key"`    // "volume_up" | "volume_down"
	Action string `json:"action"` // "press" | "release"
}

func (s *Server) handleKeyInput(w http.ResponseWriter, r *http.Request) {
	var req keyInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := trigger.Key(req.Key)
	switch req.Action {
	case "press":
		s.detector.Press(key)
	case "release":
		s.detector.Release(key)
	default:
		s.writeError(w, http.StatusBadRequest, "action must be press or release")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ============================================
// 联系人
// ============================================

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.contactRepo.ListContacts(r.Context())
	if err != nil {
		s.logger.Error("Failed to list contacts", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var contact models.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.contactRepo.CreateContact(r.Context(), &contact)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetContactEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.contactRepo.SetContactEnabled(r.Context(), id, req.Enabled); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	if err := s.contactRepo.DeleteContact(r.Context(), id); err != nil {
		s.logger.Error("Failed to delete contact", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete contact")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ============================================
// 偏好
// ============================================

type preferences struct {
	CircleEnabled    bool   `json:"circle_enabled"`
	GroupEnabled     bool   `json:"group_enabled"`
	CommunityEnabled bool   `json:"community_enabled"`
	DefaultMessage   string `json:"default_message"`
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enablement, err := s.stateManager.CategoryEnablement(ctx)
	if err != nil {
		s.logger.Error("Failed to read preferences", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read preferences")
		return
	}
	message, err := s.stateManager.DefaultMessage(ctx)
	if err != nil {
		s.logger.Error("Failed to read default message", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read preferences")
		return
	}

	s.writeJSON(w, http.StatusOK, preferences{
		CircleEnabled:    enablement[models.CategoryCircle],
		GroupEnabled:     enablement[models.CategoryGroup],
		CommunityEnabled: enablement[models.CategoryCommunity],
		DefaultMessage:   message,
	})
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferences
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	writes := map[string]bool{
		state.KeyCircleEnabled:    req.CircleEnabled,
		state.KeyGroupEnabled:     req.GroupEnabled,
		state.KeyCommunityEnabled: req.CommunityEnabled,
	}
	for name, value := range writes {
		if err := s.stateManager.SetBool(ctx, name, value); err != nil {
			s.logger.Error("Failed to write preference", zap.String("key", name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to write preferences")
			return
		}
	}
	if err := s.stateManager.SetString(ctx, state.KeyDefaultMessage, req.DefaultMessage); err != nil {
		s.logger.Error("Failed to write default message", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to write preferences")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ============================================
// 用户
// ============================================

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.userRepo.GetCurrentUser(r.Context())
	if err != nil {
		s.logger.Error("Failed to load user", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "no user profile")
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.userRepo.UpsertUser(r.Context(), &user); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ============================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{"error": message})
}
