package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/review"
	"github.com/conorfennell/studydeck/internal/sm2"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Options configures a Server.
type Options struct {
	SaveTimeout time.Duration
	// SessionTTL is how long an untouched review session is kept.
	SessionTTL time.Duration
	ReposDir   string
	Logger      *slog.Logger
	Now         func() time.Time
}

// DefaultSessionTTL is used when Options.SessionTTL is not set.
const DefaultSessionTTL = 30 * time.Minute

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	router    *http.ServeMux
	templates *template.Template
	sessions  *registry
	validate  *validator.Validate
	opts      Options
}

type sourceForm struct {
	Path      string `validate:"required"`
	ProjectID string `validate:"required"`
}

type projectForm struct {
	Name string `validate:"required,max=200"`
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, opts Options) (*Server, error) {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}

	s := &Server{
		db:        db,
		router:    http.NewServeMux(),
		templates: tpl,
		sessions:  newRegistry(opts.SessionTTL, opts.Now),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		opts:      opts,
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("POST /projects", s.handleCreateProject)

	// Review flows
	s.router.HandleFunc("POST /projects/{id}/review", s.handleStartProjectReview)
	s.router.HandleFunc("POST /review/daily", s.handleStartDailyReview)
	s.router.HandleFunc("GET /sessions/{sid}", s.handleShowQuestion)
	s.router.HandleFunc("GET /sessions/{sid}/answer", s.handleShowAnswer)
	s.router.HandleFunc("POST /sessions/{sid}/grade", s.handleGrade)
	s.router.HandleFunc("POST /sessions/{sid}/end", s.handleEnd)

	// Source management routes
	s.router.HandleFunc("POST /sources", s.handlePostSource)
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource)
	s.router.HandleFunc("POST /sync", s.handlePostSync)
	return nil
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.opts.Logger.Error("Error rendering template", "template", name, "error", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.opts.Logger.Error(msg, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

type projectSummary struct {
	ID    string
	Name  string
	Due   int
	Total int
}

func (s *Server) indexData(ctx context.Context, toasts []Toast) (map[string]any, error) {
	collections, err := s.db.Collections(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return nil, err
	}
	xp, err := s.db.TotalExperience(ctx)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	projects := make([]projectSummary, 0, len(collections))
	for _, c := range collections {
		projects = append(projects, projectSummary{
			ID:    c.ID,
			Name:  c.Name,
			Due:   review.DueCount([]review.Collection{c}, now),
			Total: len(c.Flashcards),
		})
	}
	return map[string]any{
		"Projects": projects,
		"TotalDue": review.DueCount(collections, now),
		"Sources":  sources,
		"XP":       xp,
		"Toasts":   toasts,
	}, nil
}

// handleIndex renders the projects overview with due counts.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := s.indexData(r.Context(), nil)
	if err != nil {
		s.serverError(w, "Error loading overview", err)
		return
	}
	s.render(w, http.StatusOK, "index", data)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	form := projectForm{Name: r.PostFormValue("name")}
	if err := s.validate.Struct(form); err != nil {
		http.Error(w, "Project name is required", http.StatusBadRequest)
		return
	}
	if _, err := s.db.CreateProject(r.Context(), uuid.NewString(), form.Name); err != nil {
		s.serverError(w, "Error creating project", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleStartProjectReview starts a "Study Due Cards" session, earliest due first.
func (s *Server) handleStartProjectReview(w http.ResponseWriter, r *http.Request) {
	col, err := s.db.Collection(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrProjectNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, "Error loading project", err)
		return
	}
	s.startSession(w, r, []review.Collection{col}, review.Sorted)
}

// handleStartDailyReview starts a review across every project in project order.
func (s *Server) handleStartDailyReview(w http.ResponseWriter, r *http.Request) {
	collections, err := s.db.Collections(r.Context())
	if err != nil {
		s.serverError(w, "Error loading projects", err)
		return
	}
	s.startSession(w, r, collections, review.InsertionOrder)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, collections []review.Collection, mode review.QueueMode) {
	toasts := &toastNotifier{logger: s.opts.Logger}
	session := review.NewSession(
		timeoutSaver{saver: s.db, timeout: s.opts.SaveTimeout},
		toasts,
		s.db,
		review.WithClock(s.opts.Now),
		review.WithLogger(s.opts.Logger),
		review.WithReviewLogger(s.db),
		review.WithLoader(s.db),
	)

	started, err := session.Start(collections, mode)
	if err != nil {
		s.serverError(w, "Error starting review session", err)
		return
	}
	if !started {
		s.render(w, http.StatusOK, "nothing_due", map[string]any{"Toasts": toasts.Drain()})
		return
	}

	sid := s.sessions.add(&liveSession{session: session, toasts: toasts})
	http.Redirect(w, r, "/sessions/"+sid, http.StatusSeeOther)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (string, *liveSession, bool) {
	sid := r.PathValue("sid")
	ls, ok := s.sessions.get(sid)
	if !ok {
		http.NotFound(w, r)
		return "", nil, false
	}
	return sid, ls, true
}

var gradeButtons = []struct {
	Value int
	Name  string
}{
	{int(sm2.Again), sm2.Again.String()},
	{int(sm2.Hard), sm2.Hard.String()},
	{int(sm2.Good), sm2.Good.String()},
	{int(sm2.Easy), sm2.Easy.String()},
}

func (s *Server) renderCard(w http.ResponseWriter, status int, name, sid string, ls *liveSession) {
	item, ok := ls.session.Current()
	if !ok {
		http.Error(w, "Session is not active", http.StatusConflict)
		return
	}
	s.render(w, status, name, map[string]any{
		"SessionID": sid,
		"Item":      item,
		"Position":  ls.session.Index() + 1,
		"Total":     ls.session.Len(),
		"Grades":    gradeButtons,
		"Toasts":    ls.toasts.Drain(),
	})
}

// handleShowQuestion renders the front of the current card.
func (s *Server) handleShowQuestion(w http.ResponseWriter, r *http.Request) {
	sid, ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.renderCard(w, http.StatusOK, "card_front", sid, ls)
}

// handleShowAnswer renders the back of the current card with the grade buttons.
func (s *Server) handleShowAnswer(w http.ResponseWriter, r *http.Request) {
	sid, ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.renderCard(w, http.StatusOK, "card_back", sid, ls)
}

// handleGrade processes a grade and renders the next card or the session summary.
func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	sid, ls, ok := s.lookup(w, r)
	if !ok {
		return
	}

	grade, err := sm2.ParseQuality(r.PostFormValue("grade"))
	if err != nil {
		ls.toasts.Notify("Please pick Again, Hard, Good or Easy.", review.Warning)
		s.renderCard(w, http.StatusUnprocessableEntity, "card_back", sid, ls)
		return
	}

	out, err := ls.session.Grade(r.Context(), grade)
	switch {
	case errors.Is(err, review.ErrGradeInProgress):
		http.Error(w, "A grade is already being processed", http.StatusConflict)
		return
	case errors.Is(err, review.ErrNotActive):
		s.sessions.remove(sid)
		http.Error(w, "Session is not active", http.StatusConflict)
		return
	case err != nil:
		s.serverError(w, "Error grading card", err)
		return
	}

	if out.Completed {
		s.sessions.remove(sid)
		s.render(w, http.StatusOK, "complete", map[string]any{
			"Total":  ls.session.Len(),
			"Reward": out.Reward,
			"Toasts": ls.toasts.Drain(),
		})
		return
	}
	s.renderCard(w, http.StatusOK, "card_front", sid, ls)
}

// handleEnd abandons a session without a reward.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	sid, ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ls.session.End()
	s.sessions.remove(sid)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handlePostSource adds a new source and re-renders the source list.
func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	form := sourceForm{Path: r.PostFormValue("path"), ProjectID: r.PostFormValue("project")}
	if err := s.validate.Struct(form); err != nil {
		http.Error(w, "Path and project cannot be empty", http.StatusBadRequest)
		return
	}

	if _, err := s.db.InsertSource(r.Context(), form.Path, storage.SourceType(form.Path), form.ProjectID); err != nil {
		s.opts.Logger.Error("Error inserting new source", "path", form.Path, "error", err)
		http.Error(w, "Failed to add source", http.StatusInternalServerError)
		return
	}
	s.renderSourceList(w, r)
}

// handleDeleteSource deletes a source and re-renders the source list.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}
	if err := s.db.DeleteSource(r.Context(), id); err != nil {
		s.opts.Logger.Error("Error deleting source", "id", id, "error", err)
		http.Error(w, "Failed to delete source", http.StatusInternalServerError)
		return
	}
	s.renderSourceList(w, r)
}

func (s *Server) renderSourceList(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		s.serverError(w, "Error getting sources", err)
		return
	}
	s.render(w, http.StatusOK, "source_list", map[string]any{"Sources": sources})
}

// handlePostSync runs a sync in the foreground and re-renders the overview.
func (s *Server) handlePostSync(w http.ResponseWriter, r *http.Request) {
	reports, err := sync.RunSync(r.Context(), s.db, sync.Options{
		ReposDir: s.opts.ReposDir,
		Now:      s.opts.Now,
		Logger:   s.opts.Logger,
	})
	var toasts []Toast
	if err != nil {
		s.opts.Logger.Error("Error running sync", "error", err)
		toasts = append(toasts, Toast{Message: "Sync failed.", Severity: review.Error})
	}
	for _, rep := range reports {
		sev := review.Success
		if len(rep.Errors) > 0 {
			sev = review.Warning
		}
		toasts = append(toasts, Toast{
			Message:  fmt.Sprintf("Synced %d cards (%d new, %d removed, %d errors).", rep.Parsed, rep.Added, rep.Removed, len(rep.Errors)),
			Severity: sev,
		})
	}

	data, err := s.indexData(r.Context(), toasts)
	if err != nil {
		s.serverError(w, "Error loading overview after sync", err)
		return
	}
	s.render(w, http.StatusOK, "index", data)
}
