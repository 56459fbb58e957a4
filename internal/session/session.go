// Package session holds the live editing state of one workflow. Every edit
// goes through the connectivity gate and the branch synchronizer; Save
// persists the version and reconciles its triggers.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Triglit/flowgraph/internal/branchsync"
	"github.com/Triglit/flowgraph/internal/connectivity"
	"github.com/Triglit/flowgraph/internal/events"
	"github.com/Triglit/flowgraph/internal/graph"
	"github.com/Triglit/flowgraph/internal/logging"
	"github.com/Triglit/flowgraph/internal/triggers"
)

const defaultNodeVersion = "1.0.0"

var (
	ErrWorkflowMismatch = errors.New("version belongs to another workflow")
	ErrNotTrigger       = errors.New("node type is not a trigger")
	ErrInvalidType      = errors.New("node type must not be empty")
	ErrNotSaved         = errors.New("workflow has no saved version")
	ErrPublishing       = errors.New("store cannot publish versions")
)

// Publisher is implemented by version stores that can mark a version live.
type Publisher interface {
	PublishVersion(ctx context.Context, versionID string) error
}

// VersionStore persists workflow versions.
type VersionStore interface {
	CreateVersion(ctx context.Context, workflowID string, nodes []graph.VersionNode, edges []graph.VersionEdge) (graph.Version, error)
	UpdateVersion(ctx context.Context, versionID string, nodes []graph.VersionNode, edges []graph.VersionEdge) (graph.Version, error)
	GetVersion(ctx context.Context, versionID string) (graph.Version, error)
	ListVersions(ctx context.Context, workflowID string) ([]graph.Version, error)
}

// ConfigUpdate is a user edit of a node. Nil fields are left unchanged.
type ConfigUpdate struct {
	Config     map[string]interface{} `json:"config,omitempty"`
	CustomName *string                `json:"customName,omitempty"`
	CustomID   *string                `json:"customId,omitempty"`
}

// SaveResult reports the outcome of Save.
type SaveResult struct {
	Version   graph.Version   `json:"version"`
	Reconcile triggers.Result `json:"reconcile"`
}

// Session owns one workflow's graph.
type Session struct {
	mu     sync.Mutex
	saveMu sync.Mutex

	workflowID string
	versionID  string
	g          graph.Graph

	store       VersionStore
	reconciler  *triggers.Reconciler
	translators *triggers.Translators
	log         *logrus.Entry
}

// Option configures a Session.
type Option func(*Session)

// WithTranslators sets the registry used for trigger default configs.
func WithTranslators(t *triggers.Translators) Option {
	return func(s *Session) { s.translators = t }
}

// WithLogger sets the logger entry.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Session) { s.log = l }
}

// New returns an empty session for workflowID.
func New(workflowID string, store VersionStore, r *triggers.Reconciler, opts ...Option) *Session {
	s := &Session{
		workflowID: workflowID,
		store:      store,
		reconciler: r,
		log:        logging.Component("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.translators == nil {
		s.translators = triggers.NewTranslators()
	}
	s.log = s.log.WithField("workflow_id", workflowID)
	return s
}

// WorkflowID returns the workflow this session edits.
func (s *Session) WorkflowID() string {
	return s.workflowID
}

// VersionID returns the loaded version id, empty until the first save of a
// new workflow.
func (s *Session) VersionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionID
}

// Graph returns a copy of the current graph.
func (s *Session) Graph() graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.Clone()
}

// Violations validates the current graph.
func (s *Session) Violations() []connectivity.Violation {
	return connectivity.Validate(s.Graph())
}

// Load replaces the session graph with a persisted version. An empty
// versionID selects the published version of the workflow, else its latest;
// a workflow without versions loads as an empty graph.
func (s *Session) Load(ctx context.Context, versionID string) error {
	v, found, err := s.fetch(ctx, versionID)
	if err != nil {
		return err
	}
	if !found {
		s.mu.Lock()
		s.versionID = ""
		s.g = graph.Graph{}
		s.mu.Unlock()
		s.emit("info", "graph.loaded", "", logrus.Fields{"nodes": 0, "edges": 0})
		return nil
	}

	g := branchsync.ReconcileFromEdges(graph.FromVersion(v))

	remote, err := s.reconciler.List(ctx, v.ID)
	if err != nil {
		return err
	}
	g = triggers.ResolveRefs(g, remote)

	s.mu.Lock()
	s.versionID = v.ID
	s.g = g
	s.mu.Unlock()

	s.emit("info", "graph.loaded", "", logrus.Fields{
		"version_id": v.ID,
		"version":    v.Version,
		"nodes":      len(g.Nodes),
		"edges":      len(g.Edges),
	})

	if vs := connectivity.Validate(g); len(vs) > 0 {
		msgs := make([]string, len(vs))
		for i, vi := range vs {
			msgs[i] = vi.String()
		}
		s.log.WithField("violations", len(vs)).Warn("loaded graph has violations")
		s.emit("warn", "graph.invalid", strings.Join(msgs, "; "), logrus.Fields{
			"version_id": v.ID,
			"violations": len(vs),
		})
	}
	return nil
}

func (s *Session) fetch(ctx context.Context, versionID string) (graph.Version, bool, error) {
	if versionID != "" {
		v, err := s.store.GetVersion(ctx, versionID)
		if err != nil {
			return graph.Version{}, false, err
		}
		if v.WorkflowID != "" && v.WorkflowID != s.workflowID {
			return graph.Version{}, false, fmt.Errorf("%w: %s", ErrWorkflowMismatch, versionID)
		}
		return v, true, nil
	}
	versions, err := s.store.ListVersions(ctx, s.workflowID)
	if err != nil {
		return graph.Version{}, false, fmt.Errorf("failed to list versions: %w", err)
	}
	v, ok := graph.SelectVersion(versions)
	return v, ok, nil
}

// AddNode appends a node of the given type. Trigger types without a config
// get the registered default.
func (s *Session) AddNode(nodeType, name string, config map[string]interface{}, pos graph.Position) (graph.Node, error) {
	if nodeType == "" {
		return graph.Node{}, ErrInvalidType
	}
	if config == nil && graph.IsTriggerType(nodeType) {
		config = s.translators.DefaultConfig(nodeType)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	n := graph.Node{
		ID:       uuid.NewString(),
		Kind:     graph.KindFor(nodeType),
		Position: pos,
		Data: graph.NodeData{
			Type:    nodeType,
			Name:    name,
			Version: defaultNodeVersion,
			Config:  graph.CopyConfig(config),
		},
	}
	return s.insert(n)
}

// AddTrigger appends a trigger node named "Trigger <Type>".
func (s *Session) AddTrigger(triggerType string, pos graph.Position) (graph.Node, error) {
	triggerType = graph.TriggerType(triggerType)
	if triggerType == "" {
		return graph.Node{}, ErrNotTrigger
	}
	nodeType := graph.TriggerPrefix + triggerType
	n := graph.Node{
		ID:       uuid.NewString(),
		Kind:     graph.KindOneWayOut,
		Position: pos,
		Data: graph.NodeData{
			Type:        nodeType,
			Name:        "Trigger " + strings.ToUpper(triggerType[:1]) + triggerType[1:],
			Description: "Trigger of type " + triggerType,
			Version:     defaultNodeVersion,
			Config:      s.translators.DefaultConfig(nodeType),
		},
	}
	return s.insert(n)
}

func (s *Session) insert(n graph.Node) (graph.Node, error) {
	s.mu.Lock()
	g, err := s.g.WithNode(n)
	if err == nil {
		s.g = g
	}
	s.mu.Unlock()
	if err != nil {
		return graph.Node{}, err
	}
	s.emit("info", "node.added", "", logrus.Fields{"node_id": n.ID, "node_type": n.Data.Type})
	return n, nil
}

// RemoveNode deletes a node and its edges. Branch sources of removed edges
// have the matching routing field cleared.
func (s *Session) RemoveNode(id string) error {
	s.mu.Lock()
	g, removed, err := s.g.WithoutNode(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, e := range removed {
		if e.Source == id {
			continue
		}
		g = clearBranchField(g, e)
	}
	s.g = g
	s.mu.Unlock()

	s.emit("info", "node.removed", "", logrus.Fields{"node_id": id, "edges_removed": len(removed)})
	return nil
}

// Connect adds an edge if the connectivity rules allow it. A rejection is
// returned wrapping the connectivity sentinel.
func (s *Session) Connect(c connectivity.Connection) (graph.Edge, error) {
	s.mu.Lock()
	if err := connectivity.Check(s.g, c); err != nil {
		s.mu.Unlock()
		s.emit("info", "edge.rejected", err.Error(), logrus.Fields{
			"source":        c.Source,
			"target":        c.Target,
			"source_handle": c.SourceHandle,
		})
		return graph.Edge{}, fmt.Errorf("connect %s -> %s: %w", c.Source, c.Target, err)
	}

	source, _ := s.g.Node(c.Source)
	e := graph.Edge{
		ID:           uuid.NewString(),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
	}
	for _, h := range graph.Handles(source.Data) {
		if h.ID == c.SourceHandle {
			e.Label = h.Label
		}
	}

	g := s.g.WithEdge(e)
	if graph.SupportsBranches(source.Data.Type) {
		g, _ = g.WithConfig(source.ID, branchsync.ApplyEdgeConnected(source.Data, e.SourceHandle, e.Target))
	}
	s.g = g
	s.mu.Unlock()

	s.emit("info", "edge.connected", "", logrus.Fields{
		"edge_id":       e.ID,
		"source":        e.Source,
		"target":        e.Target,
		"source_handle": e.SourceHandle,
	})
	return e, nil
}

// Disconnect removes an edge and clears the routing field it drove.
func (s *Session) Disconnect(edgeID string) error {
	s.mu.Lock()
	g, e, err := s.g.WithoutEdge(edgeID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.g = clearBranchField(g, e)
	s.mu.Unlock()

	s.emit("info", "edge.disconnected", "", logrus.Fields{
		"edge_id":       e.ID,
		"source":        e.Source,
		"target":        e.Target,
		"source_handle": e.SourceHandle,
	})
	return nil
}

func clearBranchField(g graph.Graph, e graph.Edge) graph.Graph {
	source, ok := g.Node(e.Source)
	if !ok || !graph.SupportsBranches(source.Data.Type) {
		return g
	}
	out, err := g.WithConfig(source.ID, branchsync.ApplyEdgeDisconnected(source.Data, e.SourceHandle))
	if err != nil {
		return g
	}
	return out
}

// UpdateConfig applies a user edit. Edge-derived routing fields keep their
// current values. Edges on branch handles the new config no longer has are
// removed. Setting a custom id renames the node; every edge and routing
// field that pointed at the old id follows.
func (s *Session) UpdateConfig(nodeID string, u ConfigUpdate) (graph.Node, error) {
	s.mu.Lock()
	n, ok := s.g.Node(nodeID)
	if !ok {
		s.mu.Unlock()
		return graph.Node{}, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}

	data := n.Data
	if u.Config != nil {
		config := u.Config
		if graph.SupportsBranches(data.Type) {
			config = branchsync.StripBranchFields(data.Type, config, data.Config)
		} else {
			config = graph.CopyConfig(config)
		}
		if data.TriggerRef != "" {
			config[graph.ConfigTriggerID] = data.TriggerRef
		}
		data.Config = config
	}
	if u.CustomName != nil {
		data.CustomName = strings.TrimSpace(*u.CustomName)
	}

	g, err := s.g.WithData(nodeID, data)
	if err != nil {
		s.mu.Unlock()
		return graph.Node{}, err
	}

	// edges on handles the new config no longer exposes, e.g. removed cases
	var dropped []graph.Edge
	if graph.SupportsBranches(data.Type) {
		for _, e := range g.Outgoing(nodeID) {
			if e.SourceHandle == "" || graph.HasHandle(data, e.SourceHandle) {
				continue
			}
			if g, _, err = g.WithoutEdge(e.ID); err != nil {
				s.mu.Unlock()
				return graph.Node{}, err
			}
			dropped = append(dropped, e)
		}
	}

	id := nodeID
	if u.CustomID != nil {
		customID := strings.TrimSpace(*u.CustomID)
		if customID != "" && customID != nodeID {
			g, err = g.RenameNode(nodeID, customID)
			if err != nil {
				s.mu.Unlock()
				return graph.Node{}, err
			}
			id = customID
		}
		data.CustomID = customID
		g, _ = g.WithData(id, data)
	}

	s.g = g
	updated, _ := g.Node(id)
	s.mu.Unlock()

	for _, e := range dropped {
		s.emit("info", "edge.disconnected", "", logrus.Fields{
			"edge_id":       e.ID,
			"source":        id,
			"target":        e.Target,
			"source_handle": e.SourceHandle,
		})
	}
	fields := logrus.Fields{"node_id": id}
	if id != nodeID {
		fields["previous_id"] = nodeID
	}
	s.emit("info", "node.configured", "", fields)
	return updated, nil
}

// Save persists the current graph, creating the version on first save, and
// reconciles its triggers. Refs assigned by the reconciler are merged into
// the live graph and written back to the version. A reconcile failure is
// returned together with the saved version.
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	g := s.g.Clone()
	versionID := s.versionID
	s.mu.Unlock()

	v, err := s.persist(ctx, versionID, g)
	if err != nil {
		return SaveResult{}, err
	}
	s.mu.Lock()
	s.versionID = v.ID
	s.mu.Unlock()
	s.emit("info", "version.saved", "", logrus.Fields{"version_id": v.ID, "version": v.Version})

	reconciled, res, recErr := s.reconciler.Reconcile(ctx, g, v.ID)

	s.mu.Lock()
	s.g = s.g.WithTriggerRefs(res.Refs)
	s.mu.Unlock()

	if refsChanged(g, reconciled) {
		if updated, err := s.persist(ctx, v.ID, s.Graph()); err != nil {
			s.log.WithError(err).Warn("failed to store trigger refs")
		} else {
			v = updated
		}
	}

	out := SaveResult{Version: v, Reconcile: res}
	if recErr != nil {
		s.log.WithError(recErr).Error("trigger reconciliation failed")
		return out, recErr
	}
	s.log.WithFields(logrus.Fields{
		"version_id": v.ID,
		"created":    len(res.Created),
		"updated":    len(res.Updated),
		"deleted":    len(res.Deleted),
	}).Info("workflow saved")
	return out, nil
}

// Publish marks the saved version as the live one.
func (s *Session) Publish(ctx context.Context) (string, error) {
	versionID := s.VersionID()
	if versionID == "" {
		return "", ErrNotSaved
	}
	p, ok := s.store.(Publisher)
	if !ok {
		return "", ErrPublishing
	}
	if err := p.PublishVersion(ctx, versionID); err != nil {
		return "", err
	}
	s.emit("info", "version.published", "", logrus.Fields{"version_id": versionID})
	return versionID, nil
}

func (s *Session) persist(ctx context.Context, versionID string, g graph.Graph) (graph.Version, error) {
	nodes, edges := graph.ToVersion(g)
	if versionID == "" {
		v, err := s.store.CreateVersion(ctx, s.workflowID, nodes, edges)
		if err != nil {
			return graph.Version{}, fmt.Errorf("failed to create version: %w", err)
		}
		return v, nil
	}
	v, err := s.store.UpdateVersion(ctx, versionID, nodes, edges)
	if err != nil {
		return graph.Version{}, fmt.Errorf("failed to update version %s: %w", versionID, err)
	}
	return v, nil
}

func refsChanged(before, after graph.Graph) bool {
	for _, n := range after.TriggerNodes() {
		prev, ok := before.Node(n.ID)
		if !ok || prev.Data.TriggerRef != n.Data.TriggerRef {
			return true
		}
	}
	return false
}

func (s *Session) emit(level, name, msg string, fields logrus.Fields) {
	f := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		f[k] = v
	}
	f["workflow_id"] = s.workflowID
	events.Emit(level, name, msg, f)
}
