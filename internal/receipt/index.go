package receipt

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Index persists receipts and maintains by-module, by-executor, and
// by-federation lookups, mirroring internal/dagstore's indexing pattern
// over the same storekv.Store capability interface.
type Index struct {
	kv storekv.Store
}

func NewIndex(kv storekv.Store) *Index {
	return &Index{kv: kv}
}

// Put validates r's signature, persists it keyed by its own Cid, and
// updates the module/executor/federation indices.
func (idx *Index) Put(ctx context.Context, r Receipt, resolver identity.PublicKeyResolver) (cid.Cid, error) {
	if err := r.Verify(resolver); err != nil {
		return cid.Undef, err
	}
	c, raw, err := r.CID()
	if err != nil {
		return cid.Undef, err
	}
	if err := idx.kv.Put(ctx, storekv.TableReceipts, c.Bytes(), raw); err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "persist receipt")
	}
	if err := idx.kv.Append(ctx, storekv.TableReceipts, []byte("by_module|"+r.Subject.ModuleCID), c.Bytes()); err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "index receipt by module")
	}
	if err := idx.kv.Append(ctx, storekv.TableReceipts, []byte("by_executor|"+string(r.Subject.ExecutorDid)), c.Bytes()); err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "index receipt by executor")
	}
	if err := idx.kv.Append(ctx, storekv.TableReceipts, []byte("by_federation|"+r.Subject.FederationID), c.Bytes()); err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "index receipt by federation")
	}
	return c, nil
}

// Get loads the receipt stored at c.
func (idx *Index) Get(ctx context.Context, c cid.Cid) (Receipt, error) {
	raw, found, err := idx.kv.Get(ctx, storekv.TableReceipts, c.Bytes())
	if err != nil {
		return Receipt{}, utils.Wrap(utils.KindStorage, err, "get receipt")
	}
	if !found {
		return Receipt{}, utils.New(utils.KindNotFound, "receipt not found: "+c.String())
	}
	var r Receipt
	if err := canon.Decode(raw, &r); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// ByModule returns every receipt cid issued for moduleCID.
func (idx *Index) ByModule(ctx context.Context, moduleCID string) ([]cid.Cid, error) {
	return idx.listKeyed(ctx, "by_module|"+moduleCID)
}

// ByExecutor returns every receipt cid issued by executor.
func (idx *Index) ByExecutor(ctx context.Context, executor identity.Did) ([]cid.Cid, error) {
	return idx.listKeyed(ctx, "by_executor|"+string(executor))
}

// ByFederation returns every receipt cid issued under federationID.
func (idx *Index) ByFederation(ctx context.Context, federationID string) ([]cid.Cid, error) {
	return idx.listKeyed(ctx, "by_federation|"+federationID)
}

func (idx *Index) listKeyed(ctx context.Context, key string) ([]cid.Cid, error) {
	raws, err := idx.kv.GetList(ctx, storekv.TableReceipts, []byte(key))
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list receipt index")
	}
	out := make([]cid.Cid, 0, len(raws))
	for _, raw := range raws {
		c, err := cid.Cast(raw)
		if err != nil {
			return nil, utils.Wrap(utils.KindIntegrity, err, "cast receipt index entry")
		}
		out = append(out, c)
	}
	return out, nil
}
