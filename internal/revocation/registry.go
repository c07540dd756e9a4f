package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Registry is the derived view every authorization decision in the core
// must consult, so that a revocation is only honored prospectively from its
// effective date. It is updated after each RevocationRecord node commits
// (the pipeline registers the notice once AddNode has returned), mirroring
// internal/membership's derived-view pattern.
type Registry struct {
	mu          sync.RWMutex
	didNotices  map[identity.Did][]Subject
	credNotices map[string][]Subject // credential cid string -> subjects
	kv          storekv.Store
	resolver    identity.PublicKeyResolver
}

// NewRegistry wires a Registry over kv (nil for an ephemeral in-memory
// registry, e.g. in tests). resolver verifies each registered notice's
// signature before it is consulted.
func NewRegistry(kv storekv.Store, resolver identity.PublicKeyResolver) *Registry {
	if resolver == nil {
		resolver = identity.SelfResolver{}
	}
	return &Registry{
		didNotices:  make(map[identity.Did][]Subject),
		credNotices: make(map[string][]Subject),
		kv:          kv,
		resolver:    resolver,
	}
}

// Register validates notice's signature and records it. Registration does
// not itself authorize the issuer: the pipeline dispatches a
// RevocationRecord node here only after the policy enforcer has admitted
// it, either as exempt (the "system" scope_id, or an issuer in the scope's
// Admins list) or through the scope's ordinary AllowedActions check.
func (r *Registry) Register(ctx context.Context, notice NoticeCredential) error {
	if err := notice.Verify(r.resolver); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	subj := notice.Subject
	if subj.RevokedDid != "" {
		r.didNotices[subj.RevokedDid] = append(r.didNotices[subj.RevokedDid], subj)
	}
	if subj.RevokedCredentialCID != "" {
		r.credNotices[subj.RevokedCredentialCID] = append(r.credNotices[subj.RevokedCredentialCID], subj)
	}
	return r.persist(ctx, notice)
}

func (r *Registry) persist(ctx context.Context, notice NoticeCredential) error {
	if r.kv == nil {
		return nil
	}
	raw, err := canon.Encode(notice)
	if err != nil {
		return err
	}
	if err := r.kv.Append(ctx, storekv.TableRevocations, []byte(notice.Subject.FederationID), raw); err != nil {
		return utils.Wrap(utils.KindStorage, err, "persist revocation notice")
	}
	return nil
}

// IsDidRevoked reports whether did's revocation is prospectively in effect
// at time at: some registered notice revokes did with EffectiveDate <= at.
func (r *Registry) IsDidRevoked(did identity.Did, at time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.didNotices[did] {
		if !s.EffectiveDate.After(at) {
			return true
		}
	}
	return false
}

// IsCredentialRevoked reports whether credential cidStr's revocation is
// prospectively in effect at time at.
func (r *Registry) IsCredentialRevoked(cidStr string, at time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.credNotices[cidStr] {
		if !s.EffectiveDate.After(at) {
			return true
		}
	}
	return false
}

// Load replays every persisted notice for federationID into a fresh
// Registry, skipping signature re-verification failures with no error
// (a corrupt or unverifiable historical notice is dropped, not fatal to
// startup, per the propagation policy's "derived-view updaters... log a
// warning and leave prior state unchanged" rule).
func Load(ctx context.Context, kv storekv.Store, resolver identity.PublicKeyResolver, federationID string) (*Registry, error) {
	r := NewRegistry(kv, resolver)
	raws, err := r.kv.GetList(ctx, storekv.TableRevocations, []byte(federationID))
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list revocations")
	}
	for _, raw := range raws {
		var notice NoticeCredential
		if err := canon.Decode(raw, &notice); err != nil {
			continue
		}
		if err := notice.Verify(resolver); err != nil {
			continue
		}
		subj := notice.Subject
		if subj.RevokedDid != "" {
			r.didNotices[subj.RevokedDid] = append(r.didNotices[subj.RevokedDid], subj)
		}
		if subj.RevokedCredentialCID != "" {
			r.credNotices[subj.RevokedCredentialCID] = append(r.credNotices[subj.RevokedCredentialCID], subj)
		}
	}
	return r, nil
}
