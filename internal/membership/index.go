// Package membership maintains the derived Membership Index: Did -> set of
// (scope_type, scope_id) memberships, reconstructable from Join approval
// nodes, cached alongside the ledger and persisted through storekv as the
// membership_index table.
package membership

import (
	"context"
	"sync"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Key identifies a single scope membership.
type Key struct {
	Scope   dagnode.Scope
	ScopeID string
}

// Index is the membership derived view. It is updated after a join-approval
// node commits to the store (the pipeline applies the update once AddNode
// has returned, outside the DAG Store's write lock), and can be
// reconstructed by a full replay (RebuildFromApprovals).
type Index struct {
	mu   sync.RWMutex
	live map[identity.Did]map[Key]bool // true = currently admitted, false = revoked
	kv   storekv.Store
}

func New(kv storekv.Store) *Index {
	return &Index{live: make(map[identity.Did]map[Key]bool), kv: kv}
}

// Admit records did as a member of key, as of a FederationJoinApproval (or
// genesis membership) node.
func (idx *Index) Admit(ctx context.Context, did identity.Did, key Key) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.live[did] == nil {
		idx.live[did] = make(map[Key]bool)
	}
	idx.live[did][key] = true
	return idx.persist(ctx, did)
}

// Revoke marks did's membership in key as revoked.
func (idx *Index) Revoke(ctx context.Context, did identity.Did, key Key) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.live[did] == nil {
		idx.live[did] = make(map[Key]bool)
	}
	idx.live[did][key] = false
	return idx.persist(ctx, did)
}

// IsMember reports whether did currently holds an unrevoked membership in
// key.
func (idx *Index) IsMember(did identity.Did, key Key) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.live[did][key]
}

// MembershipsOf returns every scope did is currently (unrevoked) a member
// of.
func (idx *Index) MembershipsOf(did identity.Did) []Key {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Key, 0)
	for k, admitted := range idx.live[did] {
		if admitted {
			out = append(out, k)
		}
	}
	return out
}

type walRecord struct {
	Scope   dagnode.Scope `cbor:"scope"`
	ScopeID string        `cbor:"scope_id"`
	Admit   bool          `cbor:"admit"`
}

func (idx *Index) persist(ctx context.Context, did identity.Did) error {
	if idx.kv == nil {
		return nil
	}
	records := make([]walRecord, 0, len(idx.live[did]))
	for k, admitted := range idx.live[did] {
		records = append(records, walRecord{Scope: k.Scope, ScopeID: k.ScopeID, Admit: admitted})
	}
	raw, err := canon.Encode(records)
	if err != nil {
		return err
	}
	if err := idx.kv.Put(ctx, storekv.TableMembershipIndex, []byte(did), raw); err != nil {
		return utils.Wrap(utils.KindStorage, err, "persist membership index")
	}
	return nil
}

// Load restores the index's in-memory state from storekv.
func Load(ctx context.Context, kv storekv.Store) (*Index, error) {
	idx := New(kv)
	keys, err := kv.List(ctx, storekv.TableMembershipIndex, nil)
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list membership index")
	}
	for _, k := range keys {
		raw, found, err := kv.Get(ctx, storekv.TableMembershipIndex, k)
		if err != nil {
			return nil, utils.Wrap(utils.KindStorage, err, "get membership index")
		}
		if !found {
			continue
		}
		var records []walRecord
		if err := canon.Decode(raw, &records); err != nil {
			return nil, err
		}
		did := identity.Did(k)
		idx.live[did] = make(map[Key]bool, len(records))
		for _, r := range records {
			idx.live[did][Key{Scope: r.Scope, ScopeID: r.ScopeID}] = r.Admit
		}
	}
	return idx, nil
}

// RebuildFromApprovals replays every FederationJoinApproval node's
// authorizations into a fresh index. Callers pass the already-parsed
// (scope, scopeID, memberDid) triples extracted by the join package from
// each approval.
func RebuildFromApprovals(ctx context.Context, kv storekv.Store, approvals []Approval) (*Index, error) {
	idx := New(kv)
	for _, a := range approvals {
		if err := idx.Admit(ctx, a.Did, Key{Scope: a.Scope, ScopeID: a.ScopeID}); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Approval is the minimal projection of a FederationJoinApproval node
// RebuildFromApprovals needs.
type Approval struct {
	Did     identity.Did
	Scope   dagnode.Scope
	ScopeID string
}
