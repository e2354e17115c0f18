// Package apitest runs an in-process fake of the community backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/kingrea/guildgate/internal/api"
)

// Route names identify endpoints in recorded calls, failures and gates.
const (
	RouteEligibility = "eligibility"
	RouteSubmit      = "submit"
	RouteList        = "list"
	RouteAccept      = "accept"
	RouteReject      = "reject"
	RouteDelete      = "delete"
	RouteGrant       = "grant"
	RouteMe          = "me"
	RouteLogout      = "logout"
	RouteGames       = "games"
	RouteGameCreate  = "game.create"
	RouteGameUpdate  = "game.update"
	RouteGameDelete  = "game.delete"
	RouteRules       = "rules"
	RouteRuleCreate  = "rule.create"
	RouteRuleUpdate  = "rule.update"
	RouteRuleDelete  = "rule.delete"
)

// Call is one request the fake received.
type Call struct {
	Route  string
	Method string
	Path   string
	Query  map[string]string
	Vars   map[string]string
	Token  string
	Body   map[string]any
}

type failure struct {
	status int
	body   string
}

// Gate holds requests for one route until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Entered is signalled each time a request reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every held and future request through.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// Server is the fake backend. Its API root is URL().
type Server struct {
	srv *httptest.Server

	mu           sync.Mutex
	calls        []Call
	failures     map[string][]failure
	gates        map[string]*Gate
	eligibility  api.Eligibility
	submitResult map[string]any
	users        map[string]api.User
	applications []map[string]any
	grants       []string
	games        []api.Game
	rules        []api.RuleSection
	nextID       int
}

// NewServer starts a fake backend that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		failures:     map[string][]failure{},
		gates:        map[string]*Gate{},
		eligibility:  api.Eligibility{Eligible: true},
		submitResult: map[string]any{"success": true, "dm_sent": true},
		users:        map[string]api.User{},
	}
	s.srv = httptest.NewServer(s.router())
	t.Cleanup(func() {
		s.mu.Lock()
		for _, gate := range s.gates {
			gate.Release()
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

// URL returns the API base URL to hand to api.NewClient.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Client returns an api.Client pointed at the fake using token.
func (s *Server) Client(token string) *api.Client {
	return api.NewClient(s.URL(), api.WithTokenSource(api.TokenFunc(func() string { return token })))
}

// AddUser makes token resolve to user on /auth/me.
func (s *Server) AddUser(token string, user api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[token] = user
}

// SetEligibility scripts the eligibility verdict.
func (s *Server) SetEligibility(e api.Eligibility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eligibility = e
}

// SetSubmitResult scripts the body returned by a successful submission.
func (s *Server) SetSubmitResult(body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitResult = body
}

// AddApplication seeds a record. id and status default when absent.
func (s *Server) AddApplication(record map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addApplicationLocked(record)
}

func (s *Server) addApplicationLocked(record map[string]any) string {
	copied := make(map[string]any, len(record)+2)
	for k, v := range record {
		copied[k] = v
	}
	id, _ := copied["id"].(string)
	if id == "" {
		s.nextID++
		id = fmt.Sprintf("app-%d", s.nextID)
		copied["id"] = id
	}
	if _, ok := copied["status"]; !ok {
		copied["status"] = string(api.StatusPending)
	}
	s.applications = append(s.applications, copied)
	return id
}

// Application returns a copy of a stored record.
func (s *Server) Application(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.applications {
		if record["id"] == id {
			copied := make(map[string]any, len(record))
			for k, v := range record {
				copied[k] = v
			}
			return copied, true
		}
	}
	return nil, false
}

// Grants lists user ids granted an early reapply.
func (s *Server) Grants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.grants...)
}

// AddGame seeds the game catalog.
func (s *Server) AddGame(game api.Game) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.ID == "" {
		s.nextID++
		game.ID = fmt.Sprintf("game-%d", s.nextID)
	}
	s.games = append(s.games, game)
	return game.ID
}

// AddRule seeds the rule sections.
func (s *Server) AddRule(rule api.RuleSection) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		s.nextID++
		rule.ID = fmt.Sprintf("rule-%d", s.nextID)
	}
	s.rules = append(s.rules, rule)
	return rule.ID
}

// Fail makes the next request to route answer with status and body.
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, body: body})
}

// Hold parks requests to route until the returned gate is released.
func (s *Server) Hold(route string) *Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := &Gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
	s.gates[route] = gate
	return gate
}

// Calls returns every recorded request.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded requests for one route.
func (s *Server) CallsTo(route string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Route == route {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/application-manager/check-eligibility", s.wrap(RouteEligibility, s.handleEligibility)).Methods(http.MethodPost)
	a.HandleFunc("/application-manager/submit-with-discord", s.wrap(RouteSubmit, s.handleSubmit)).Methods(http.MethodPost)
	a.HandleFunc("/application-manager/ceo/grant-reapply/{user_id}", s.wrap(RouteGrant, s.handleGrant)).Methods(http.MethodPost)
	a.HandleFunc("/applications/manager/all", s.wrap(RouteList, s.handleList)).Methods(http.MethodGet)
	a.HandleFunc("/applications/manager/accept/{id}", s.wrap(RouteAccept, s.handleTransition(api.StatusAccepted, "notes", "notes"))).Methods(http.MethodPost)
	a.HandleFunc("/applications/manager/reject/{id}", s.wrap(RouteReject, s.handleTransition(api.StatusRejected, "reason", "rejection_reason"))).Methods(http.MethodPost)
	a.HandleFunc("/applications/manager/{id}", s.wrap(RouteDelete, s.handleDelete)).Methods(http.MethodDelete)
	a.HandleFunc("/auth/me", s.wrap(RouteMe, s.handleMe)).Methods(http.MethodGet)
	a.HandleFunc("/auth/logout", s.wrap(RouteLogout, s.handleLogout)).Methods(http.MethodPost)
	a.HandleFunc("/games", s.wrap(RouteGames, s.handleGames)).Methods(http.MethodGet)
	a.HandleFunc("/games", s.wrap(RouteGameCreate, s.handleGameSave)).Methods(http.MethodPost)
	a.HandleFunc("/games/{id}", s.wrap(RouteGameUpdate, s.handleGameSave)).Methods(http.MethodPut)
	a.HandleFunc("/games/{id}", s.wrap(RouteGameDelete, s.handleGameDelete)).Methods(http.MethodDelete)
	a.HandleFunc("/rules", s.wrap(RouteRules, s.handleRules)).Methods(http.MethodGet)
	a.HandleFunc("/rules", s.wrap(RouteRuleCreate, s.handleRuleSave)).Methods(http.MethodPost)
	a.HandleFunc("/rules/{id}", s.wrap(RouteRuleUpdate, s.handleRuleSave)).Methods(http.MethodPut)
	a.HandleFunc("/rules/{id}", s.wrap(RouteRuleDelete, s.handleRuleDelete)).Methods(http.MethodDelete)
	return r
}

type handler func(w http.ResponseWriter, r *http.Request, call Call)

func (s *Server) wrap(route string, next handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := Call{
			Route:  route,
			Method: r.Method,
			Path:   strings.TrimPrefix(r.URL.Path, "/api"),
			Query:  map[string]string{},
			Vars:   mux.Vars(r),
			Token:  strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		}
		for key := range r.URL.Query() {
			call.Query[key] = r.URL.Query().Get(key)
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &call.Body)
		}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		gate := s.gates[route]
		s.mu.Unlock()

		if gate != nil {
			select {
			case gate.entered <- struct{}{}:
			default:
			}
			select {
			case <-gate.release:
			case <-r.Context().Done():
				return
			}
		}

		s.mu.Lock()
		var scripted *failure
		if queue := s.failures[route]; len(queue) > 0 {
			scripted = &queue[0]
			s.failures[route] = queue[1:]
		}
		s.mu.Unlock()
		if scripted != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(scripted.status)
			_, _ = io.WriteString(w, scripted.body)
			return
		}
		next(w, r, call)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleEligibility(w http.ResponseWriter, _ *http.Request, _ Call) {
	s.mu.Lock()
	e := s.eligibility
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleSubmit(w http.ResponseWriter, _ *http.Request, call Call) {
	s.mu.Lock()
	record := map[string]any{}
	for k, v := range call.Body {
		record[k] = v
	}
	if user, ok := s.users[call.Token]; ok {
		record["user_id"] = user.ID
	}
	record["status"] = string(api.StatusPending)
	s.addApplicationLocked(record)
	result := s.submitResult
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, call Call) {
	facet := call.Query["status"]
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.applications))
	for _, record := range s.applications {
		if facet == "" || facet == string(api.FacetAll) || record["status"] == facet {
			copied := make(map[string]any, len(record))
			for k, v := range record {
				copied[k] = v
			}
			out = append(out, copied)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"applications": out})
}

func (s *Server) handleTransition(to api.Status, bodyKey, recordKey string) handler {
	return func(w http.ResponseWriter, _ *http.Request, call Call) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, record := range s.applications {
			if record["id"] != call.Vars["id"] {
				continue
			}
			if record["status"] != string(api.StatusPending) {
				writeDetail(w, http.StatusBadRequest, "Application already processed")
				return
			}
			record["status"] = string(to)
			record[recordKey] = call.Body[bodyKey]
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
		writeDetail(w, http.StatusNotFound, "Application not found")
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, _ *http.Request, call Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, record := range s.applications {
		if record["id"] == call.Vars["id"] {
			s.applications = append(s.applications[:i], s.applications[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Application not found")
}

func (s *Server) handleGrant(w http.ResponseWriter, _ *http.Request, call Call) {
	s.mu.Lock()
	s.grants = append(s.grants, call.Vars["user_id"])
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, call Call) {
	s.mu.Lock()
	user, ok := s.users[call.Token]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request, call Call) {
	s.mu.Lock()
	delete(s.users, call.Token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGames(w http.ResponseWriter, _ *http.Request, _ Call) {
	s.mu.Lock()
	games := append([]api.Game{}, s.games...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleGameSave(w http.ResponseWriter, _ *http.Request, call Call) {
	var game api.Game
	raw, _ := json.Marshal(call.Body)
	_ = json.Unmarshal(raw, &game)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := call.Vars["id"]; id != "" {
		for i := range s.games {
			if s.games[i].ID == id {
				game.ID = id
				s.games[i] = game
				writeJSON(w, http.StatusOK, game)
				return
			}
		}
		writeDetail(w, http.StatusNotFound, "Game not found")
		return
	}
	s.nextID++
	game.ID = fmt.Sprintf("game-%d", s.nextID)
	s.games = append(s.games, game)
	writeJSON(w, http.StatusCreated, game)
}

func (s *Server) handleGameDelete(w http.ResponseWriter, _ *http.Request, call Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.games {
		if s.games[i].ID == call.Vars["id"] {
			s.games = append(s.games[:i], s.games[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Game not found")
}

func (s *Server) handleRules(w http.ResponseWriter, _ *http.Request, _ Call) {
	s.mu.Lock()
	rules := append([]api.RuleSection{}, s.rules...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleRuleSave(w http.ResponseWriter, _ *http.Request, call Call) {
	var rule api.RuleSection
	raw, _ := json.Marshal(call.Body)
	_ = json.Unmarshal(raw, &rule)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := call.Vars["id"]; id != "" {
		for i := range s.rules {
			if s.rules[i].ID == id {
				rule.ID = id
				s.rules[i] = rule
				writeJSON(w, http.StatusOK, rule)
				return
			}
		}
		writeDetail(w, http.StatusNotFound, "Rule section not found")
		return
	}
	s.nextID++
	rule.ID = fmt.Sprintf("rule-%d", s.nextID)
	s.rules = append(s.rules, rule)
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleRuleDelete(w http.ResponseWriter, _ *http.Request, call Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == call.Vars["id"] {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Rule section not found")
}
