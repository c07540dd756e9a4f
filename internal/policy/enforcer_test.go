package policy

import (
	"context"
	"testing"
	"time"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/revocation"
)

func mustJSONNode(t *testing.T, author identity.Did, scope dagnode.Scope, scopeID, federationID string, ts int64, fields map[string]interface{}) dagnode.Node {
	t.Helper()
	payload, err := dagnode.NewJSONPayload(fields)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return dagnode.Node{
		Payload: payload,
		Parents: []string{"bafyparent"},
		Author:  string(author),
		Metadata: dagnode.Metadata{
			Timestamp:    ts,
			Scope:        scope,
			ScopeID:      scopeID,
			FederationID: federationID,
		},
	}
}

func TestResolveScopeTypeFromPrefix(t *testing.T) {
	cases := []struct {
		id   string
		want dagnode.Scope
		ok   bool
	}{
		{"fed:alpha", dagnode.ScopeFederation, true},
		{"coop:alpha", dagnode.ScopeCooperative, true},
		{"com:alpha", dagnode.ScopeCommunity, true},
		{"unscoped", "", false},
	}
	for _, c := range cases {
		got, ok := ResolveScopeType(c.id)
		if ok != c.ok || got != c.want {
			t.Fatalf("ResolveScopeType(%q) = (%v,%v), want (%v,%v)", c.id, got, ok, c.want, c.ok)
		}
	}
}

func TestEnforcerAuthorizeAllowsMatchingRule(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	store := NewStore(nil)
	_ = store.SetPolicy(context.Background(), ScopePolicy{
		ScopeType:      dagnode.ScopeCooperative,
		ScopeID:        "coop:x",
		AllowedActions: []Rule{{ActionType: "submit_proposal"}},
	})
	e := NewEnforcer(store, nil, nil)
	node := mustJSONNode(t, kp.Did, dagnode.ScopeCooperative, "coop:x", "fed:a", 100, map[string]interface{}{"type": "submit_proposal"})
	if err := e.Authorize(node, time.Unix(100, 0)); err != nil {
		t.Fatalf("expected authorized: %v", err)
	}
}

func TestEnforcerAuthorizeRejectsScopeMismatch(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	store := NewStore(nil)
	e := NewEnforcer(store, nil, nil)
	node := mustJSONNode(t, kp.Did, dagnode.ScopeFederation, "coop:x", "fed:a", 100, map[string]interface{}{"type": "submit_proposal"})
	if err := e.Authorize(node, time.Unix(100, 0)); err == nil {
		t.Fatalf("expected structural error on scope_id/metadata.scope mismatch")
	}
}

func TestEnforcerAuthorizeRejectsRevokedAuthor(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	store := NewStore(nil)
	_ = store.SetPolicy(context.Background(), ScopePolicy{
		ScopeType:      dagnode.ScopeCooperative,
		ScopeID:        "coop:x",
		AllowedActions: []Rule{{ActionType: "submit_proposal"}},
	})
	admin, _ := identity.GenerateKeyPair()
	reg := revocation.NewRegistry(nil, identity.SelfResolver{})
	effective := time.Unix(50, 0)
	notice, err := revocation.NewDidRevocation("fed:a", kp.Did, "compromised", admin.Did, effective, effective).Sign(admin)
	if err != nil {
		t.Fatalf("sign revocation: %v", err)
	}
	if err := reg.Register(context.Background(), notice); err != nil {
		t.Fatalf("register revocation: %v", err)
	}

	e := NewEnforcer(store, nil, reg)
	node := mustJSONNode(t, kp.Did, dagnode.ScopeCooperative, "coop:x", "fed:a", 100, map[string]interface{}{"type": "submit_proposal"})
	if err := e.Authorize(node, time.Unix(100, 0)); err == nil {
		t.Fatalf("expected revoked author to be denied")
	}
	// Before the effective date the Did was still authorized.
	if err := e.Authorize(node, time.Unix(10, 0)); err != nil {
		t.Fatalf("expected authorization to succeed before revocation effective date: %v", err)
	}
}

func TestEnforcerAuthorizeRequiresMembership(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	store := NewStore(nil)
	_ = store.SetPolicy(context.Background(), ScopePolicy{
		ScopeType: dagnode.ScopeCooperative,
		ScopeID:   "coop:x",
		AllowedActions: []Rule{
			{ActionType: "mint_token", RequiredMembershipFederationID: "fed:a"},
		},
	})
	idx := membership.New(nil)
	e := NewEnforcer(store, idx, nil)
	node := mustJSONNode(t, kp.Did, dagnode.ScopeCooperative, "coop:x", "fed:a", 100, map[string]interface{}{"type": "mint_token"})
	if err := e.Authorize(node, time.Unix(100, 0)); err == nil {
		t.Fatalf("expected denial before membership granted")
	}
	if err := idx.Admit(context.Background(), kp.Did, membership.Key{Scope: dagnode.ScopeFederation, ScopeID: "fed:a"}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := e.Authorize(node, time.Unix(100, 0)); err != nil {
		t.Fatalf("expected authorized after membership granted: %v", err)
	}
}

func TestEnforcerAuthorizeExemptsGenesis(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	store := NewStore(nil)
	e := NewEnforcer(store, nil, nil)
	payload, err := dagnode.NewJSONPayload(map[string]interface{}{"type": "FederationGenesis"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	node := dagnode.Node{Payload: payload, Author: string(kp.Did), Metadata: dagnode.Metadata{Scope: dagnode.ScopeFederation, FederationID: "fed:a"}}
	if err := e.Authorize(node, time.Unix(100, 0)); err != nil {
		t.Fatalf("expected genesis node exempt: %v", err)
	}
}
