// Package policy implements the scope-lineage authorization model: per-scope
// mutable authorization tables, action extraction, and the DAG-flowing
// policy-update pipeline.
package policy

import (
	"context"
	"sync"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Rule is one entry in a ScopePolicy's allowed_actions list.
type Rule struct {
	ActionType string `cbor:"action_type" json:"action_type"`
	// RequiredMembershipFederationID, if set, requires the acting Did to be
	// a current member of this federation (checked via the Membership
	// Index).
	RequiredMembershipFederationID string `cbor:"required_membership,omitempty" json:"required_membership,omitempty"`
	// AllowedDids, if non-empty, restricts the rule to this explicit set.
	AllowedDids []identity.Did `cbor:"allowed_dids,omitempty" json:"allowed_dids,omitempty"`
}

// ScopePolicy is the per-scope mutable authorization table.
type ScopePolicy struct {
	ScopeType      dagnode.Scope `cbor:"scope_type" json:"scope_type"`
	ScopeID        string        `cbor:"scope_id" json:"scope_id"`
	AllowedActions []Rule        `cbor:"allowed_actions" json:"allowed_actions"`
	// Admins lists the Dids permitted to issue a RevocationRecord for this
	// scope without being subject to AllowedActions at all: revocation
	// records are authorized by admin membership alone, checked separately
	// from Check.
	Admins []identity.Did `cbor:"admins,omitempty" json:"admins,omitempty"`
}

// Check walks allowed_actions, applying the first rule whose action_type
// matches. Success on the first satisfied rule; default deny.
func (p ScopePolicy) Check(actionType string, did identity.Did, federationID string, idx *membership.Index) error {
	for _, rule := range p.AllowedActions {
		if rule.ActionType != actionType {
			continue
		}
		if rule.RequiredMembershipFederationID != "" {
			if idx == nil || !idx.IsMember(did, membership.Key{Scope: dagnode.ScopeFederation, ScopeID: rule.RequiredMembershipFederationID}) {
				return utils.New(utils.KindAuthorization, "missing required membership in "+rule.RequiredMembershipFederationID)
			}
		}
		if len(rule.AllowedDids) > 0 && !containsDid(rule.AllowedDids, did) {
			return utils.New(utils.KindAuthorization, "did not in allowed_dids for action "+actionType)
		}
		return nil // first matching, satisfied rule wins
	}
	return utils.New(utils.KindAuthorization, "no policy rule permits action "+actionType)
}

func containsDid(list []identity.Did, d identity.Did) bool {
	for _, x := range list {
		if x == d {
			return true
		}
	}
	return false
}

// Store is the mutable, write-serialized policy set: one ScopePolicy per
// (scope_type, scope_id), plus a federation default fallback.
type Store struct {
	mu       sync.RWMutex
	policies map[string]ScopePolicy // key: scopeType|scopeID
	defaults map[string]ScopePolicy // key: federationID, the federation's default policy
	kv       storekv.Store
}

func NewStore(kv storekv.Store) *Store {
	return &Store{policies: make(map[string]ScopePolicy), defaults: make(map[string]ScopePolicy), kv: kv}
}

func policyKey(scopeType dagnode.Scope, scopeID string) string {
	return string(scopeType) + "|" + scopeID
}

// SetPolicy atomically replaces the policy for (scope_type, scope_id).
func (s *Store) SetPolicy(ctx context.Context, p ScopePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policyKey(p.ScopeType, p.ScopeID)] = p
	if s.kv == nil {
		return nil
	}
	raw, err := canon.Encode(p)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, storekv.TablePolicyCurrent, []byte(policyKey(p.ScopeType, p.ScopeID)), raw); err != nil {
		return utils.Wrap(utils.KindStorage, err, "persist policy")
	}
	return nil
}

// SetFederationDefault sets the fallback policy applied when a
// (scope_type, scope_id) has no explicit policy.
func (s *Store) SetFederationDefault(federationID string, p ScopePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[federationID] = p
}

// PolicyFor returns the current policy for (scope_type, scope_id), falling
// back to the federation's default policy, or NotFound if neither exists.
func (s *Store) PolicyFor(scopeType dagnode.Scope, scopeID, federationID string) (ScopePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[policyKey(scopeType, scopeID)]; ok {
		return p, nil
	}
	if p, ok := s.defaults[federationID]; ok {
		return p, nil
	}
	return ScopePolicy{}, utils.New(utils.KindNotFound, "no policy for scope "+string(scopeType)+"/"+scopeID)
}

// Load restores policies from storekv.
func Load(ctx context.Context, kv storekv.Store) (*Store, error) {
	s := NewStore(kv)
	keys, err := kv.List(ctx, storekv.TablePolicyCurrent, nil)
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list policies")
	}
	for _, k := range keys {
		raw, found, err := kv.Get(ctx, storekv.TablePolicyCurrent, k)
		if err != nil {
			return nil, utils.Wrap(utils.KindStorage, err, "get policy")
		}
		if !found {
			continue
		}
		var p ScopePolicy
		if err := canon.Decode(raw, &p); err != nil {
			return nil, err
		}
		s.policies[string(k)] = p
	}
	return s, nil
}
