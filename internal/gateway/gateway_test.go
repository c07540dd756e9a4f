package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/dagstore"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/policy"
	"github.com/intercoop-network/dag-core/internal/storekv"
)

func newTestController(t *testing.T) (*Controller, *identity.KeyPair) {
	t.Helper()
	kv := storekv.NewMemoryStore()
	store := dagstore.New(kv, nil, nil)
	kp, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	payload, err := dagnode.NewJSONPayload(map[string]interface{}{"type": "FederationGenesis"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	node := dagnode.NewNode(payload, nil, kp.Did, dagnode.Metadata{Timestamp: 1, Scope: dagnode.ScopeFederation, FederationID: "fed:a"})
	signed, err := dagnode.Sign(node, kp)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := store.AddNode(context.Background(), signed); err != nil {
		t.Fatalf("add node: %v", err)
	}
	policies := policy.NewStore(nil)
	policies.SetFederationDefault("fed:a", policy.ScopePolicy{
		ScopeType: dagnode.ScopeFederation,
		ScopeID:   "fed:a",
	})
	return NewController(store, policies, nil), kp
}

func TestDagViewReturnsTips(t *testing.T) {
	c, _ := newTestController(t)
	router := mux.NewRouter()
	Register(router, c)

	req := httptest.NewRequest(http.MethodGet, "/api/dag/view", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	tips, ok := body["tips"].([]interface{})
	if !ok || len(tips) != 1 {
		t.Fatalf("expected exactly one tip, got %+v", body)
	}
}

func TestActivityLogFiltersByFederation(t *testing.T) {
	c, _ := newTestController(t)
	router := mux.NewRouter()
	Register(router, c)

	req := httptest.NewRequest(http.MethodGet, "/api/activity-log?federation_id=fed:a", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entries []nodeView
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 || entries[0].FederationID != "fed:a" {
		t.Fatalf("unexpected activity log: %+v", entries)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/activity-log?federation_id=fed:other", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	var empty []nodeView
	if err := json.Unmarshal(rec2.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no entries for unrelated federation, got %+v", empty)
	}
}

func TestInspectPolicyReturnsFederationDefault(t *testing.T) {
	c, _ := newTestController(t)
	router := mux.NewRouter()
	Register(router, c)

	req := httptest.NewRequest(http.MethodGet, "/api/policy/inspect?scope_type=federation&scope_id=fed:a&federation_id=fed:a", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInspectPolicyUnknownScopeReturnsNotFound(t *testing.T) {
	c, _ := newTestController(t)
	router := mux.NewRouter()
	Register(router, c)

	req := httptest.NewRequest(http.MethodGet, "/api/policy/inspect?scope_type=community&scope_id=com:nope&federation_id=fed:other", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unconfigured scope, got %d", rec.Code)
	}
}

func TestValidateQuorumReportsSatisfaction(t *testing.T) {
	c, _ := newTestController(t)
	router := mux.NewRouter()
	Register(router, c)

	body := bytes.NewBufferString(`{"config":{"Type":"all","Participants":[]},"msg_hash":null,"proof":{"Entries":[]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/quorum/validate", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if satisfied, _ := result["satisfied"].(bool); satisfied {
		t.Fatalf("expected an empty participant set to fail config validation: %+v", result)
	}
}
