package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Triglit/flowgraph/internal/branchsync"
	"github.com/Triglit/flowgraph/internal/connectivity"
	"github.com/Triglit/flowgraph/internal/graph"
	"github.com/Triglit/flowgraph/internal/session"
	"github.com/Triglit/flowgraph/internal/triggers"
)

type LoadRequest struct {
	VersionID string `json:"versionId"`
}

type GraphResponse struct {
	WorkflowID string                   `json:"workflowId"`
	VersionID  string                   `json:"versionId,omitempty"`
	Graph      graph.Graph              `json:"graph"`
	Violations []connectivity.Violation `json:"violations"`
}

// AddNodeRequest adds a plain node, or a trigger node when TriggerType is set.
type AddNodeRequest struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	TriggerType string                 `json:"triggerType"`
	Config      map[string]interface{} `json:"config"`
	Position    graph.Position         `json:"position"`
}

type ValidateResponse struct {
	Valid      bool                     `json:"valid"`
	Error      string                   `json:"error,omitempty"`
	Violations []connectivity.Violation `json:"violations"`
}

type SaveResponse struct {
	session.SaveResult
	Error string `json:"error,omitempty"`
}

func (s *Server) sessionFor(r *http.Request) *session.Session {
	return s.sessions.Get(mux.Vars(r)["workflowID"])
}

func (s *Server) graphResponse(sess *session.Session) GraphResponse {
	g := sess.Graph()
	vs := connectivity.Validate(g)
	if vs == nil {
		vs = []connectivity.Violation{}
	}
	return GraphResponse{
		WorkflowID: sess.WorkflowID(),
		VersionID:  sess.VersionID(),
		Graph:      g,
		Violations: vs,
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrEdgeNotFound),
		errors.Is(err, graph.ErrVersionNotFound),
		errors.Is(err, triggers.ErrTriggerNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrDuplicateID),
		errors.Is(err, graph.ErrNodeExists),
		connectivity.Reason(err) != "":
		return http.StatusConflict
	case errors.Is(err, graph.ErrInvalidNodeRef),
		errors.Is(err, session.ErrWorkflowMismatch),
		errors.Is(err, session.ErrInvalidType),
		errors.Is(err, session.ErrNotTrigger):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotSaved):
		return http.StatusConflict
	case errors.Is(err, session.ErrPublishing):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error(), Reason: connectivity.Reason(err)})
}

func (s *Server) loadHandler(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess := s.sessionFor(r)
	if err := sess.Load(r.Context(), req.VersionID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.graphResponse(sess))
}

func (s *Server) graphHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.graphResponse(s.sessionFor(r)))
}

func (s *Server) discardHandler(w http.ResponseWriter, r *http.Request) {
	s.sessions.Remove(mux.Vars(r)["workflowID"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess := s.sessionFor(r)
	var (
		n   graph.Node
		err error
	)
	if req.TriggerType != "" {
		n, err = sess.AddTrigger(req.TriggerType, req.Position)
	} else {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = req.Type
		}
		n, err = sess.AddNode(req.Type, name, req.Config, req.Position)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) removeNodeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessionFor(r).RemoveNode(mux.Vars(r)["nodeID"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req session.ConfigUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.sessionFor(r).UpdateConfig(mux.Vars(r)["nodeID"], req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handlesHandler(w http.ResponseWriter, r *http.Request) {
	hs, err := s.sessionFor(r).Handles(mux.Vars(r)["nodeID"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hs)
}

func (s *Server) fieldsHandler(w http.ResponseWriter, r *http.Request) {
	fs, err := s.sessionFor(r).Fields(mux.Vars(r)["nodeID"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	var req connectivity.Connection
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, err := s.sessionFor(r).Connect(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessionFor(r).Disconnect(mux.Vars(r)["edgeID"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveHandler answers 502 when the version was stored but trigger
// reconciliation failed; the body still carries what was applied.
func (s *Server) saveHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.sessionFor(r).Save(r.Context())
	recordSave(err)
	var applyErr *triggers.ApplyError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SaveResponse{SaveResult: res})
	case errors.As(err, &applyErr) || res.Version.ID != "":
		writeJSON(w, http.StatusBadGateway, SaveResponse{SaveResult: res, Error: err.Error()})
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) publishHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionFor(r).Publish(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"versionId": id})
}

// validateHandler checks a posted version without touching any session.
func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	var v graph.Version
	if err := decodeJSON(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := ValidateResponse{Valid: true, Violations: []connectivity.Violation{}}
	if err := graph.ValidateVersion(v); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	g := branchsync.ReconcileFromEdges(graph.FromVersion(v))
	if vs := connectivity.Validate(g); len(vs) > 0 {
		resp.Valid = false
		resp.Violations = vs
	}
	writeJSON(w, http.StatusOK, resp)
}
