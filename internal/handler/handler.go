package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examgen/internal/evaluate"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/index"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
	"github.com/pavelanni/examgen/internal/workflow"
)

// EvaluationCompleted is the status reported by a finished evaluation.
const EvaluationCompleted = "Evaluation completed"

const defaultMaxUploadBytes = 32 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	generator *workflow.Service
	evaluator *evaluate.Service
	ingester  *index.Ingester
	index     *index.Handle
	config    model.Config
}

// New creates a new Handler.
func New(s *store.Store, gen *workflow.Service, ev *evaluate.Service, ing *index.Ingester, idx *index.Handle, cfg model.Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{store: s, generator: gen, evaluator: ev, ingester: ing, index: idx, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Post("/upload-document", h.handleUploadDocument)
	r.Get("/document", h.handleDocument)

	r.Post("/generate-questions", h.handleGenerate)
	r.Get("/questions", h.handleQuestions)
	r.Get("/latest_exam_id", h.handleLatestExamID)
	r.Get("/exam_ids", h.handleExamIDs)
	r.Get("/exam_details/{examID}", h.handleExamDetails)

	r.Post("/drafts", h.handleSaveDraft)
	r.Get("/drafts", h.handleGetDraft)

	r.Post("/evaluate_answers", h.handleEvaluate)
	r.Get("/feedback/{examID}", h.handleFeedback)
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) respondMessage(w http.ResponseWriter, r *http.Request, status int, msgID string, data map[string]any) {
	respondJSON(w, status, errorResponse{Error: i18n.Td(r.Context(), msgID, data)})
}

// respondError maps err onto a status code and a localized message.
// notFoundID names the message used for model.ErrNotFound.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, notFoundID string, data map[string]any) {
	var ue *llm.UpstreamError
	switch {
	case errors.Is(err, workflow.ErrNoQuestions):
		slog.Warn("generation produced no questions", "path", r.URL.Path)
		h.respondMessage(w, r, http.StatusBadGateway, "ErrNoQuestions", nil)
	case errors.As(err, &ue):
		slog.Warn("upstream failure", "path", r.URL.Path, "op", ue.Op, "error", err)
		msgID := "ErrUpstream"
		if ue.Timeout() {
			msgID = "ErrUpstreamTimeout"
		}
		h.respondMessage(w, r, http.StatusBadGateway, msgID, nil)
	case errors.Is(err, model.ErrNotFound):
		if notFoundID == "" {
			notFoundID = "ErrNotFound"
		}
		h.respondMessage(w, r, http.StatusNotFound, notFoundID, data)
	case errors.Is(err, model.ErrMissingPrerequisite):
		h.respondMessage(w, r, http.StatusBadRequest, "ErrMissingPrerequisite", map[string]any{"Detail": detail(err)})
	case errors.Is(err, model.ErrInvalidRequest):
		h.respondMessage(w, r, http.StatusBadRequest, "ErrInvalidRequest", map[string]any{"Detail": detail(err)})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		h.respondMessage(w, r, http.StatusInternalServerError, "ErrInternal", nil)
	}
}

// detail flattens joined errors onto one line.
func detail(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}

func (h *Handler) requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		h.respondMessage(w, r, http.StatusBadRequest, "ErrMissingParam", map[string]any{"Name": name})
		return "", false
	}
	return v, true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Version  int64  `json:"version"`
	Chunks   int    `json:"chunks"`
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		h.respondMessage(w, r, http.StatusBadRequest, "ErrInvalidRequest", map[string]any{"Detail": "file too large or malformed upload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondMessage(w, r, http.StatusBadRequest, "ErrMissingParam", map[string]any{"Name": "file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, r, err, "", nil)
		return
	}

	info, err := h.ingester.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		h.respondError(w, r, err, "", nil)
		return
	}

	respondJSON(w, http.StatusOK, uploadResponse{
		Message:  i18n.Tp(r.Context(), "DocumentIndexed", info.Chunks, map[string]any{"Name": info.Name}),
		Filename: header.Filename,
		Version:  info.Version,
		Chunks:   info.Chunks,
	})
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	snap := h.index.Snapshot()
	if snap == nil {
		h.respondMessage(w, r, http.StatusNotFound, "ErrDocumentNotFound", nil)
		return
	}
	respondJSON(w, http.StatusOK, snap.Info())
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondMessage(w, r, http.StatusBadRequest, "ErrInvalidRequest", map[string]any{"Detail": err.Error()})
		return
	}

	e, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err, "", nil)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	examID, ok := h.requireParam(w, r, "exam_id")
	if !ok {
		return
	}
	e, err := h.store.GetExam(r.Context(), examID)
	if err != nil {
		h.respondError(w, r, err, "ErrExamNotFound", map[string]any{"ExamID": examID})
		return
	}
	questions := e.Questions()
	if questions == nil {
		questions = []model.Question{}
	}
	respondJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleLatestExamID(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.LatestExam(r.Context())
	if err != nil {
		h.respondError(w, r, err, "", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"exam_id": e.ExamID})
}

func (h *Handler) handleExamIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ExamIDs(r.Context())
	if err != nil {
		h.respondError(w, r, err, "", nil)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

func (h *Handler) handleExamDetails(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	e, err := h.store.GetExam(r.Context(), examID)
	if err != nil {
		h.respondError(w, r, err, "ErrExamNotFound", map[string]any{"ExamID": examID})
		return
	}
	respondJSON(w, http.StatusOK, e)
}

type saveDraftRequest struct {
	UserID  string              `json:"userId"`
	ExamID  string              `json:"examId"`
	Answers []model.DraftAnswer `json:"userAnswerData"`
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req saveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondMessage(w, r, http.StatusBadRequest, "ErrInvalidRequest", map[string]any{"Detail": err.Error()})
		return
	}
	for _, f := range []struct{ name, value string }{{"userId", req.UserID}, {"examId", req.ExamID}} {
		if strings.TrimSpace(f.value) == "" {
			h.respondMessage(w, r, http.StatusBadRequest, "ErrMissingParam", map[string]any{"Name": f.name})
			return
		}
	}

	if _, err := h.store.GetExam(r.Context(), req.ExamID); err != nil {
		h.respondError(w, r, err, "ErrExamNotFound", map[string]any{"ExamID": req.ExamID})
		return
	}

	d := model.Draft{ExamID: req.ExamID, UserID: req.UserID, Answers: req.Answers}
	if err := h.store.SaveDraft(r.Context(), d); err != nil {
		h.respondError(w, r, err, "", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": i18n.T(r.Context(), "DraftSaved")})
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireParam(w, r, "userId")
	if !ok {
		return
	}
	examID, ok := h.requireParam(w, r, "examId")
	if !ok {
		return
	}
	d, err := h.store.GetDraft(r.Context(), examID, userID)
	if err != nil {
		h.respondError(w, r, err, "ErrDraftNotFound", nil)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type evaluateResponse struct {
	Status string `json:"status"`
	ExamID string `json:"exam_id"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	examID, ok := h.requireParam(w, r, "exam_id")
	if !ok {
		return
	}
	if _, err := h.evaluator.EvaluateExam(r.Context(), examID); err != nil {
		h.respondError(w, r, err, "ErrExamNotFound", map[string]any{"ExamID": examID})
		return
	}
	respondJSON(w, http.StatusOK, evaluateResponse{Status: EvaluationCompleted, ExamID: examID})
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	sets, err := h.store.FeedbackForExam(r.Context(), examID)
	if err != nil {
		h.respondError(w, r, err, "ErrFeedbackNotFound", map[string]any{"ExamID": examID})
		return
	}
	respondJSON(w, http.StatusOK, sets)
}
