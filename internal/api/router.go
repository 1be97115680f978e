package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/config"
	"github.com/minhqd/among-arena/internal/diag"
	"github.com/minhqd/among-arena/internal/game"
	"github.com/minhqd/among-arena/internal/provider"
	"github.com/minhqd/among-arena/internal/spectate"
	"github.com/minhqd/among-arena/internal/validation"
	mw "github.com/minhqd/among-arena/internal/middleware"

	"golang.org/x/time/rate"
)

// session is one hosted game: its engine, the loop's cancel handle, and the
// spectator feed over its snapshots.
type session struct {
	engine  *game.Engine
	feed    *spectate.Feed
	cancel  context.CancelFunc
	running bool
	// resultCh is the Done channel the current result waiter is bound to.
	// One waiter per run; restarting before game over keeps the channel, so
	// a second start must not spawn a second waiter on it.
	resultCh <-chan struct{}
}

// Server hosts arena games over HTTP. Reads (snapshots, events, results,
// spectating) are public; lifecycle and intents require an operator token.
type Server struct {
	router      chi.Router
	registry    *provider.Registry
	store       *diag.Store
	secret      []byte
	logger      *log.Logger
	games       map[string]*session
	gamesMu     sync.RWMutex
	rateLimiter *mw.RateLimiter
}

// NewServer creates an API server. The store may be nil; diagnostics then
// go nowhere and the history endpoints return empty lists.
func NewServer(registry *provider.Registry, store *diag.Store, secret []byte, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	s := &Server{
		router:      chi.NewRouter(),
		registry:    registry,
		store:       store,
		secret:      secret,
		logger:      logger,
		games:       make(map[string]*session),
		rateLimiter: mw.NewRateLimiter(rate.Limit(100), 20),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(mw.SecurityHeaders)
	s.router.Use(mw.MaxBodySize(1024 * 1024)) // 1MB max

	// Public endpoints
	s.router.Post("/api/games", s.createGame)
	s.router.Get("/api/games", s.listGames)
	s.router.Get("/api/games/{id}", s.getSnapshot)
	s.router.Get("/api/games/{id}/events", s.getEvents)
	s.router.Get("/api/games/{id}/results", s.getResults)
	s.router.Get("/api/games/{id}/watch", s.watchGame)
	s.router.Get("/api/providers", s.listProviders)

	// Operator endpoints
	s.router.Group(func(r chi.Router) {
		r.Use(mw.Auth(s.secret))
		r.Post("/api/games/{id}/start", s.startGame)
		r.Post("/api/games/{id}/restart", s.restartGame)
		r.Post("/api/games/{id}/intent", s.postIntent)
		r.Post("/api/games/{id}/emergency", s.postEmergency)
		r.Post("/api/games/{id}/pacing", s.setPacing)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops every hosted game loop.
func (s *Server) Close() {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()
	for _, sess := range s.games {
		if sess.cancel != nil {
			sess.cancel()
		}
	}
}

// Response wraps API responses.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response, hiding internals on server faults.
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, Response{Success: false, Error: message})
}

// lookup fetches a session after validating the game ID. A nil return means
// the response has already been written.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *session {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return nil
	}
	s.gamesMu.RLock()
	sess, ok := s.games[gameID]
	s.gamesMu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Game not found")
		return nil
	}
	return sess
}

// createGame sets up a game from a config body and leaves it in the lobby.
func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	cfg := config.Defaults()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	gameID := uuid.New().String()
	engine, err := game.New(gameID, cfg, s.registry, s.recorder(), s.logger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := &session{
		engine: engine,
		feed:   spectate.NewFeed(engine, s.logger),
	}
	s.gamesMu.Lock()
	s.games[gameID] = sess
	s.gamesMu.Unlock()

	writeJSON(w, http.StatusCreated, Response{Success: true, Data: engine.Snapshot()})
}

// listGames lists hosted game IDs with their phases.
func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	s.gamesMu.RLock()
	defer s.gamesMu.RUnlock()

	list := make([]map[string]interface{}, 0, len(s.games))
	for id, sess := range s.games {
		snap := sess.engine.Snapshot()
		list = append(list, map[string]interface{}{
			"id":     id,
			"phase":  snap.Phase,
			"round":  snap.Round,
			"agents": len(snap.Agents),
		})
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: list})
}

// getSnapshot returns the spectator view of a game.
func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: sess.engine.Snapshot()})
}

// getEvents returns recent diagnostics records for a game.
func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	records := []diag.Record{}
	if s.store != nil {
		recs, err := s.store.Events(sess.engine.ID, 100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		records = recs
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: records})
}

// getResults returns stored outcomes for a game across restarts.
func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	results := []diag.Result{}
	if s.store != nil {
		res, err := s.store.Results(sess.engine.ID, 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		results = res
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: results})
}

// watchGame hands the connection to the spectator feed.
func (s *Server) watchGame(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	sess.feed.ServeHTTP(w, r)
}

// listProviders returns the registered provider IDs.
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.registry.IDs()})
}

// startGame assigns roles and launches the game loop.
func (s *Server) startGame(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	if err := sess.engine.Start(); err != nil {
		if errors.Is(err, game.ErrWrongState) {
			writeError(w, http.StatusConflict, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.gamesMu.Lock()
	if !sess.running {
		ctx, cancel := context.WithCancel(context.Background())
		sess.cancel = cancel
		sess.running = true
		go sess.engine.Run(ctx)
	}
	if done := sess.engine.Done(); sess.resultCh != done {
		sess.resultCh = done
		go s.awaitResult(sess.engine, done)
	}
	s.gamesMu.Unlock()

	writeJSON(w, http.StatusOK, Response{Success: true, Data: sess.engine.Snapshot()})
}

// restartGame resets a game to the lobby. An optional seed pins the next
// run; zero derives one from the current stream.
func (s *Server) restartGame(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Seed int64 `json:"seed"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if err := sess.engine.Restart(req.Seed); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: sess.engine.Snapshot()})
}

// postIntent queues an action on behalf of an agent. The action body goes
// through the same schema validation as provider output.
func (s *Server) postIntent(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	var req struct {
		AgentID int             `json:"agent_id"`
		Action  json.RawMessage `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validation.ValidateAgentID(req.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	act, err := action.Parse(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.engine.HumanIntent(req.AgentID, act); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, Response{Success: true})
}

// postEmergency queues an emergency meeting call.
func (s *Server) postEmergency(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	var req struct {
		AgentID int `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validation.ValidateAgentID(req.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.engine.CallEmergency(req.AgentID); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, Response{Success: true})
}

// setPacing throttles one provider's outbound call rate for a game.
func (s *Server) setPacing(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Provider string  `json:"provider"`
		Rate     float64 `json:"rate"`
		Burst    int     `json:"burst"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validation.ValidateProviderID(req.Provider); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Rate <= 0 || req.Burst < 1 {
		writeError(w, http.StatusBadRequest, "Rate must be positive and burst at least 1")
		return
	}
	sess.engine.Gateway().SetPacing(req.Provider, rate.Limit(req.Rate), req.Burst)
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// recorder returns the diagnostics sink for new engines.
func (s *Server) recorder() diag.Recorder {
	if s.store != nil {
		return s.store
	}
	return diag.Nop{}
}

// awaitResult persists the outcome once a run finishes.
func (s *Server) awaitResult(engine *game.Engine, done <-chan struct{}) {
	<-done
	res, ok := engine.Result()
	if !ok || s.store == nil {
		return
	}
	err := s.store.SaveResult(res.GameID, string(res.Winner), string(res.Reason),
		res.Seed, res.Ticks, res.Rounds)
	if err != nil {
		s.logger.Printf("save result for %s: %v", res.GameID, err)
	}
}
