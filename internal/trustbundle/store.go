package trustbundle

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Store persists finalized bundles keyed by Cid, with a by-federation
// index: each federation keeps a sequence of bundles, not just the latest,
// since a bundle is only replaced by the next anchored bundle rather than
// overwritten. Uses the same blob-by-cid-plus-Append-index layout as
// internal/receipt.Index, applied to storekv.TableTrustBundles.
type Store struct {
	kv storekv.Store
}

func NewStore(kv storekv.Store) *Store {
	return &Store{kv: kv}
}

// Put verifies b under resolver/opts, then persists it keyed by its own
// Cid and indexes it under its federation, returning the computed Cid.
func (s *Store) Put(ctx context.Context, b Bundle, resolver identity.PublicKeyResolver, opts VerificationOptions) (cid.Cid, error) {
	if err := Verify(b, resolver, opts); err != nil {
		return cid.Undef, err
	}
	c, raw, err := CID(b)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.kv.Put(ctx, storekv.TableTrustBundles, c.Bytes(), raw); err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "persist trust bundle")
	}
	if err := s.kv.Append(ctx, storekv.TableTrustBundles, []byte("by_federation|"+b.FederationID), c.Bytes()); err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "index trust bundle by federation")
	}
	return c, nil
}

// Get loads a bundle by Cid.
func (s *Store) Get(ctx context.Context, c cid.Cid) (Bundle, bool, error) {
	raw, found, err := s.kv.Get(ctx, storekv.TableTrustBundles, c.Bytes())
	if err != nil {
		return Bundle{}, false, utils.Wrap(utils.KindStorage, err, "get trust bundle")
	}
	if !found {
		return Bundle{}, false, nil
	}
	var b Bundle
	if err := canon.Decode(raw, &b); err != nil {
		return Bundle{}, false, err
	}
	return b, true, nil
}

// ByFederation returns every bundle anchored for federationID, oldest
// first (the order bundles were Put).
func (s *Store) ByFederation(ctx context.Context, federationID string) ([]Bundle, error) {
	keys, err := s.kv.GetList(ctx, storekv.TableTrustBundles, []byte("by_federation|"+federationID))
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list trust bundles by federation")
	}
	out := make([]Bundle, 0, len(keys))
	for _, k := range keys {
		c, err := cid.Cast(k)
		if err != nil {
			return nil, utils.Wrap(utils.KindIntegrity, err, "cast trust bundle index key")
		}
		b, found, err := s.Get(ctx, c)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, b)
		}
	}
	return out, nil
}
