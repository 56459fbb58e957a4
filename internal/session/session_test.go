package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Triglit/flowgraph/internal/connectivity"
	"github.com/Triglit/flowgraph/internal/events"
	"github.com/Triglit/flowgraph/internal/graph"
	"github.com/Triglit/flowgraph/internal/logging"
	"github.com/Triglit/flowgraph/internal/storage/sqlstore"
	"github.com/Triglit/flowgraph/internal/triggers"
)

const workflowID = "wf_orders"

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	s, err := sqlstore.New(context.Background(), db, sqlstore.SQLite)
	if err != nil {
		t.Fatalf("sqlstore.New failed: %v", err)
	}
	return s
}

func newSession(t *testing.T, store VersionStore, api triggers.API) *Session {
	t.Helper()
	r := triggers.NewReconciler(api, triggers.NewTranslators(), triggers.WithLogger(logging.Discard()))
	return New(workflowID, store, r, WithLogger(logging.Discard()))
}

func mustAdd(t *testing.T, s *Session, nodeType string, config map[string]interface{}) graph.Node {
	t.Helper()
	n, err := s.AddNode(nodeType, nodeType, config, graph.Position{})
	if err != nil {
		t.Fatalf("AddNode(%s): %v", nodeType, err)
	}
	return n
}

func mustConnect(t *testing.T, s *Session, source, target, handle string) graph.Edge {
	t.Helper()
	e, err := s.Connect(connectivity.Connection{Source: source, Target: target, SourceHandle: handle})
	if err != nil {
		t.Fatalf("Connect(%s -> %s): %v", source, target, err)
	}
	return e
}

func nodeConfig(t *testing.T, s *Session, id string) map[string]interface{} {
	t.Helper()
	n, ok := s.Graph().Node(id)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	return n.Data.Config
}

func TestConnectSyncsBranchConfig(t *testing.T) {
	s := newSession(t, newStore(t), triggers.NewMemoryAPI())
	cond := mustAdd(t, s, graph.TypeCondition, map[string]interface{}{"expression": "total > 100"})
	approve := mustAdd(t, s, "http_request", nil)
	reject := mustAdd(t, s, "http_request", nil)
	extra := mustAdd(t, s, "http_request", nil)

	e := mustConnect(t, s, cond.ID, approve.ID, graph.HandleTrue)
	if e.Label != "True" {
		t.Errorf("edge label = %q, want True", e.Label)
	}
	mustConnect(t, s, cond.ID, reject.ID, graph.HandleFalse)

	cfg := nodeConfig(t, s, cond.ID)
	if cfg["trueBranch"] != approve.ID || cfg["falseBranch"] != reject.ID {
		t.Errorf("unexpected branch config: %v", cfg)
	}

	_, err := s.Connect(connectivity.Connection{Source: cond.ID, Target: extra.ID, SourceHandle: graph.HandleTrue})
	if !errors.Is(err, connectivity.ErrHandleConnected) {
		t.Errorf("expected ErrHandleConnected, got %v", err)
	}

	if err := s.Disconnect(e.ID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := nodeConfig(t, s, cond.ID)["trueBranch"]; got != "" {
		t.Errorf("trueBranch after disconnect = %v, want empty", got)
	}
	if err := s.Disconnect(e.ID); !errors.Is(err, graph.ErrEdgeNotFound) {
		t.Errorf("expected ErrEdgeNotFound, got %v", err)
	}
}

func TestConnectRejectsTriggerTargetAndCycle(t *testing.T) {
	s := newSession(t, newStore(t), triggers.NewMemoryAPI())
	trig, err := s.AddTrigger("event", graph.Position{})
	if err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	a := mustAdd(t, s, "transform", nil)
	b := mustAdd(t, s, "transform", nil)

	if _, err := s.Connect(connectivity.Connection{Source: a.ID, Target: trig.ID}); !errors.Is(err, connectivity.ErrTriggerTarget) {
		t.Errorf("expected ErrTriggerTarget, got %v", err)
	}
	mustConnect(t, s, a.ID, b.ID, "")
	if _, err := s.Connect(connectivity.Connection{Source: b.ID, Target: a.ID}); !errors.Is(err, connectivity.ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
	if len(s.Graph().Edges) != 1 {
		t.Errorf("rejected connections must not add edges")
	}
}

func TestRemoveNodeClearsSourceRouting(t *testing.T) {
	s := newSession(t, newStore(t), triggers.NewMemoryAPI())
	sw := mustAdd(t, s, graph.TypeSwitch, map[string]interface{}{
		"expression": "status",
		"cases": []interface{}{
			map[string]interface{}{"value": "paid", "nodeId": ""},
		},
	})
	paid := mustAdd(t, s, "notify", nil)
	fallback := mustAdd(t, s, "notify", nil)

	mustConnect(t, s, sw.ID, paid.ID, graph.CaseHandle(0))
	mustConnect(t, s, sw.ID, fallback.ID, graph.HandleDefault)

	if err := s.RemoveNode(paid.ID); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	cfg := nodeConfig(t, s, sw.ID)
	if got := graph.Cases(cfg)[0]["nodeId"]; got != "" {
		t.Errorf("case nodeId = %v, want empty", got)
	}
	if cfg["defaultNode"] != fallback.ID {
		t.Errorf("defaultNode = %v, want %s", cfg["defaultNode"], fallback.ID)
	}
	if len(s.Graph().Edges) != 1 {
		t.Errorf("expected 1 edge left, got %d", len(s.Graph().Edges))
	}
}

func TestUpdateConfigKeepsDerivedFieldsAndRenames(t *testing.T) {
	s := newSession(t, newStore(t), triggers.NewMemoryAPI())
	cond := mustAdd(t, s, graph.TypeCondition, map[string]interface{}{"expression": "a"})
	approve := mustAdd(t, s, "notify", nil)
	other := mustAdd(t, s, "notify", nil)
	mustConnect(t, s, cond.ID, approve.ID, graph.HandleTrue)

	_, err := s.UpdateConfig(cond.ID, ConfigUpdate{Config: map[string]interface{}{
		"expression": "b",
		"trueBranch": "somewhere-else",
	}})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	cfg := nodeConfig(t, s, cond.ID)
	if cfg["expression"] != "b" || cfg["trueBranch"] != approve.ID {
		t.Errorf("unexpected config after edit: %v", cfg)
	}

	id := "approve_order"
	name := "  Approve  "
	n, err := s.UpdateConfig(approve.ID, ConfigUpdate{CustomID: &id, CustomName: &name})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if n.ID != id || n.Data.CustomID != id || n.Data.CustomName != "Approve" {
		t.Errorf("unexpected renamed node: %+v", n)
	}
	if got := nodeConfig(t, s, cond.ID)["trueBranch"]; got != id {
		t.Errorf("trueBranch after rename = %v, want %s", got, id)
	}
	if e := s.Graph().Edges[0]; e.Target != id {
		t.Errorf("edge target after rename = %s", e.Target)
	}

	if _, err := s.UpdateConfig(other.ID, ConfigUpdate{CustomID: &id}); !errors.Is(err, graph.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := s.UpdateConfig("missing", ConfigUpdate{}); !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestUpdateConfigDropsEdgesOnRemovedCases(t *testing.T) {
	s := newSession(t, newStore(t), triggers.NewMemoryAPI())
	sw := mustAdd(t, s, graph.TypeSwitch, map[string]interface{}{
		"expression": "status",
		"cases": []interface{}{
			map[string]interface{}{"value": "paid", "nodeId": ""},
			map[string]interface{}{"value": "refunded", "nodeId": ""},
		},
	})
	paid := mustAdd(t, s, "notify", nil)
	refunded := mustAdd(t, s, "notify", nil)
	fallback := mustAdd(t, s, "notify", nil)
	mustConnect(t, s, sw.ID, paid.ID, graph.CaseHandle(0))
	gone := mustConnect(t, s, sw.ID, refunded.ID, graph.CaseHandle(1))
	mustConnect(t, s, sw.ID, fallback.ID, graph.HandleDefault)

	sub := events.Subscribe()
	defer events.Unsubscribe(sub)

	_, err := s.UpdateConfig(sw.ID, ConfigUpdate{Config: map[string]interface{}{
		"expression": "status",
		"cases": []interface{}{
			map[string]interface{}{"value": "paid"},
		},
	}})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	g := s.Graph()
	var handles []string
	for _, e := range g.Outgoing(sw.ID) {
		handles = append(handles, e.SourceHandle)
	}
	if diff := cmp.Diff([]string{graph.CaseHandle(0), graph.HandleDefault}, handles); diff != "" {
		t.Errorf("remaining handles (-want +got):\n%s", diff)
	}
	if v := connectivity.Validate(g); len(v) != 0 {
		t.Errorf("graph invalid after edit: %v", v)
	}
	if got := graph.Cases(nodeConfig(t, s, sw.ID))[0]["nodeId"]; got != paid.ID {
		t.Errorf("case 0 nodeId = %v, want %s", got, paid.ID)
	}

	var disconnected []string
	for len(sub) > 0 {
		e := <-sub
		if e.Name != "edge.disconnected" {
			continue
		}
		if e.Fields["workflow_id"] != workflowID || e.Fields["source_handle"] != graph.CaseHandle(1) {
			t.Errorf("unexpected edge.disconnected fields: %v", e.Fields)
		}
		disconnected = append(disconnected, e.Fields["edge_id"].(string))
	}
	if diff := cmp.Diff([]string{gone.ID}, disconnected); diff != "" {
		t.Errorf("edge.disconnected events (-want +got):\n%s", diff)
	}
}

func TestAddTriggerDefaults(t *testing.T) {
	s := newSession(t, newStore(t), triggers.NewMemoryAPI())
	n, err := s.AddTrigger("trigger_schedule", graph.Position{X: 10, Y: 20})
	if err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	want := graph.NodeData{
		Type:        "trigger_schedule",
		Name:        "Trigger Schedule",
		Description: "Trigger of type schedule",
		Version:     "1.0.0",
		Config:      map[string]interface{}{"cronExpression": "0 0 * * *", "timezone": "UTC"},
	}
	if diff := cmp.Diff(want, n.Data); diff != "" {
		t.Errorf("trigger data mismatch (-want +got):\n%s", diff)
	}
	if n.Kind != graph.KindOneWayOut {
		t.Errorf("kind = %s", n.Kind)
	}
	if _, err := s.AddTrigger("", graph.Position{}); !errors.Is(err, ErrNotTrigger) {
		t.Errorf("expected ErrNotTrigger, got %v", err)
	}
}

func TestSaveCreatesVersionAndReconciles(t *testing.T) {
	store := newStore(t)
	s := newSession(t, store, store)
	ctx := context.Background()

	trig, err := s.AddTrigger("schedule", graph.Position{})
	if err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	step := mustAdd(t, s, "transform", nil)
	mustConnect(t, s, trig.ID, step.ID, "")

	res, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Version.Version != 1 || len(res.Reconcile.Created) != 1 {
		t.Fatalf("unexpected first save: version=%d created=%d", res.Version.Version, len(res.Reconcile.Created))
	}
	ref := res.Reconcile.Created[0].ID

	n, _ := s.Graph().Node(trig.ID)
	if n.Data.TriggerRef != ref {
		t.Errorf("live TriggerRef = %q, want %q", n.Data.TriggerRef, ref)
	}

	stored, err := store.GetVersion(ctx, res.Version.ID)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	for _, vn := range stored.Nodes {
		if vn.ID == trig.ID && vn.Config[graph.ConfigTriggerID] != ref {
			t.Errorf("stored config lacks trigger ref: %v", vn.Config)
		}
	}

	again, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if again.Version.ID != res.Version.ID {
		t.Errorf("second save created a new version")
	}
	if len(again.Reconcile.Created)+len(again.Reconcile.Updated)+len(again.Reconcile.Deleted) != 0 {
		t.Errorf("second save was not idempotent: %+v", again.Reconcile)
	}

	if err := s.RemoveNode(trig.ID); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	third, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("third Save: %v", err)
	}
	if diff := cmp.Diff([]string{ref}, third.Reconcile.Deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDerivesRoutingAndClearsStaleRefs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	v, err := store.CreateVersion(ctx, workflowID, []graph.VersionNode{
		{ID: "trig", Type: "trigger_event", Name: "Order placed", Config: map[string]interface{}{
			"eventType":           "order.placed",
			graph.ConfigTriggerID: "trg_gone",
		}},
		{ID: "check", Type: graph.TypeCondition, Name: "Check", Config: map[string]interface{}{
			"trueBranch":  "stale",
			"falseBranch": "stale",
		}},
		{ID: "ship", Type: "http_request", Name: "Ship", Config: map[string]interface{}{}},
	}, []graph.VersionEdge{
		{ID: "e1", SourceNodeID: "trig", TargetNodeID: "check"},
		{ID: "e2", SourceNodeID: "check", TargetNodeID: "ship", SourceOutputKey: graph.HandleTrue},
	})
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}

	s := newSession(t, store, store)
	if err := s.Load(ctx, ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.VersionID() != v.ID {
		t.Errorf("VersionID = %q, want %q", s.VersionID(), v.ID)
	}

	cfg := nodeConfig(t, s, "check")
	if cfg["trueBranch"] != "ship" || cfg["falseBranch"] != "" {
		t.Errorf("routing not derived from edges: %v", cfg)
	}
	trig, _ := s.Graph().Node("trig")
	if trig.Data.TriggerRef != "" {
		t.Errorf("stale ref kept: %q", trig.Data.TriggerRef)
	}
	if vs := s.Violations(); len(vs) != 0 {
		t.Errorf("unexpected violations: %v", vs)
	}
}

func TestLoadEmptyAndForeignWorkflow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	s := newSession(t, store, store)

	if err := s.Load(ctx, ""); err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if g := s.Graph(); len(g.Nodes) != 0 || s.VersionID() != "" {
		t.Errorf("expected empty session, got %+v", g)
	}

	foreign, err := store.CreateVersion(ctx, "wf_other", nil, nil)
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if err := s.Load(ctx, foreign.ID); !errors.Is(err, ErrWorkflowMismatch) {
		t.Errorf("expected ErrWorkflowMismatch, got %v", err)
	}
	if err := s.Load(ctx, "ver_missing"); !errors.Is(err, graph.ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestHandlesAndFields(t *testing.T) {
	s := newSession(t, newStore(t), triggers.NewMemoryAPI())
	sw := mustAdd(t, s, graph.TypeSwitch, map[string]interface{}{
		"expression": "status",
		"cases": []interface{}{
			map[string]interface{}{"value": "paid", "nodeId": ""},
			map[string]interface{}{"value": "refunded", "description": "Refund", "nodeId": ""},
		},
		"_customName": "hidden",
	})
	target := mustAdd(t, s, "notify", nil)
	e := mustConnect(t, s, sw.ID, target.ID, graph.CaseHandle(1))

	hs, err := s.Handles(sw.ID)
	if err != nil {
		t.Fatalf("Handles: %v", err)
	}
	wantHandles := []HandleState{
		{ID: "case-0", Label: "paid"},
		{ID: "case-1", Label: "Refund", EdgeID: e.ID, Target: target.ID},
		{ID: "default", Label: "Default"},
	}
	if diff := cmp.Diff(wantHandles, hs); diff != "" {
		t.Errorf("handles mismatch (-want +got):\n%s", diff)
	}

	fields, err := s.Fields(sw.ID)
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	var names []string
	readOnly := map[string]string{}
	for _, f := range fields {
		names = append(names, f.Name)
		if f.ReadOnly {
			readOnly[f.Name] = f.Handle
		}
	}
	wantNames := []string{"cases", "cases[0].nodeId", "cases[1].nodeId", "expression"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Errorf("field names mismatch (-want +got):\n%s", diff)
	}
	wantRO := map[string]string{"cases[0].nodeId": "case-0", "cases[1].nodeId": "case-1"}
	if diff := cmp.Diff(wantRO, readOnly); diff != "" {
		t.Errorf("read-only mismatch (-want +got):\n%s", diff)
	}

	if hs, _ := s.Handles(target.ID); len(hs) != 0 {
		t.Errorf("plain node has handles: %v", hs)
	}
}

func TestRegistry(t *testing.T) {
	store := newStore(t)
	built := 0
	r := NewRegistry(func(id string) *Session {
		built++
		r := triggers.NewReconciler(store, triggers.NewTranslators(), triggers.WithLogger(logging.Discard()))
		return New(id, store, r, WithLogger(logging.Discard()))
	})

	a := r.Get("wf_a")
	if r.Get("wf_a") != a || built != 1 {
		t.Errorf("Get did not reuse the session")
	}
	r.Get("wf_b")
	if diff := cmp.Diff([]string{"wf_a", "wf_b"}, r.IDs()); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	r.Remove("wf_a")
	if _, ok := r.Lookup("wf_a"); ok || r.Len() != 1 {
		t.Errorf("Remove did not drop the session")
	}
}

func TestPublish(t *testing.T) {
	store := newStore(t)
	s := newSession(t, store, store)
	ctx := context.Background()

	if _, err := s.Publish(ctx); !errors.Is(err, ErrNotSaved) {
		t.Fatalf("expected ErrNotSaved before save, got %v", err)
	}

	mustAdd(t, s, "transform", nil)
	res, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	id, err := s.Publish(ctx)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != res.Version.ID {
		t.Errorf("published %s, want %s", id, res.Version.ID)
	}
	v, err := store.GetVersion(ctx, id)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if !v.IsActive || v.PublishedAt == nil {
		t.Errorf("version not marked published: %+v", v)
	}
}

// versionsOnly hides PublishVersion.
type versionsOnly struct{ VersionStore }

func TestPublishUnsupportedStore(t *testing.T) {
	store := newStore(t)
	s := newSession(t, versionsOnly{store}, store)
	ctx := context.Background()

	mustAdd(t, s, "transform", nil)
	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Publish(ctx); !errors.Is(err, ErrPublishing) {
		t.Errorf("expected ErrPublishing, got %v", err)
	}
}
