// Package dagstore implements the content-addressed DAG Store: persistence
// of Signed Nodes keyed by Cid, with author/payload-type/scope indices, tip
// tracking, branch verification, and path finding. Writes are serialized
// per federation by a dedicated mutex rather than one store-wide lock, so
// unrelated federations never contend.
package dagstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Store is the DAG Store capability interface. The core depends only on
// this interface; backend choice (storekv.MemoryStore, storekv.BoltStore)
// is a composition-root decision.
type Store interface {
	AddNode(ctx context.Context, signed *dagnode.SignedNode) (cid.Cid, error)
	GetNode(ctx context.Context, c cid.Cid) (*dagnode.SignedNode, error)
	GetData(ctx context.Context, c cid.Cid) ([]byte, bool, error)
	GetTips(ctx context.Context) ([]cid.Cid, error)
	GetOrderedNodes(ctx context.Context) ([]*dagnode.SignedNode, error)
	GetNodesByAuthor(ctx context.Context, did identity.Did) ([]*dagnode.SignedNode, error)
	GetNodesByPayloadType(ctx context.Context, kind dagnode.Kind) ([]*dagnode.SignedNode, error)
	GetNodesByScope(ctx context.Context, scope dagnode.Scope, scopeID string) ([]*dagnode.SignedNode, error)
	FindPath(ctx context.Context, from, to cid.Cid) ([]*dagnode.SignedNode, error)
	VerifyBranch(ctx context.Context, tip cid.Cid, resolver identity.PublicKeyResolver) error
	Contains(ctx context.Context, c cid.Cid) (bool, error)
}

// DAGStore is the default Store implementation over a storekv.Store.
type DAGStore struct {
	kv       storekv.Store
	logger   *logrus.Logger
	resolver identity.PublicKeyResolver
	writeMus sync.Map // federationID string -> *sync.Mutex
}

// New wires a DAGStore over the given KV backend. resolver is consulted to
// verify each node's author signature on insertion; a nil resolver defaults
// to identity.SelfResolver, which treats every did:key as self-certifying.
func New(kv storekv.Store, logger *logrus.Logger, resolver identity.PublicKeyResolver) *DAGStore {
	if logger == nil {
		logger = logrus.New()
	}
	if resolver == nil {
		resolver = identity.SelfResolver{}
	}
	return &DAGStore{kv: kv, logger: logger, resolver: resolver}
}

func (s *DAGStore) writeLock(federationID string) *sync.Mutex {
	m, _ := s.writeMus.LoadOrStore(federationID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// AddNode validates signature and parent closure, computes the Cid, and
// persists the node plus its indices. Re-inserting an identical node is
// idempotent: it returns the same Cid without duplicating storage.
func (s *DAGStore) AddNode(ctx context.Context, signed *dagnode.SignedNode) (cid.Cid, error) {
	lock := s.writeLock(signed.Inner.Metadata.FederationID)
	lock.Lock()
	defer lock.Unlock()

	if err := signed.Inner.Validate(); err != nil {
		return cid.Undef, err
	}

	if err := signed.VerifySignature(s.resolver); err != nil {
		return cid.Undef, err
	}

	parents, err := signed.Inner.ParentCIDs()
	if err != nil {
		return cid.Undef, err
	}
	for _, p := range parents {
		ok, err := s.containsLocked(ctx, p)
		if err != nil {
			return cid.Undef, err
		}
		if !ok {
			return cid.Undef, utils.New(utils.KindStructural, "missing parent "+p.String())
		}
	}

	c, err := signed.CID()
	if err != nil {
		return cid.Undef, err
	}

	existing, found, err := s.kv.Get(ctx, storekv.TableNodes, c.Bytes())
	if err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "check existing node")
	}
	if found {
		_ = existing
		return c, nil // idempotent insert
	}

	blob, err := signed.MarshalForStorage()
	if err != nil {
		return cid.Undef, err
	}
	if err := s.kv.Put(ctx, storekv.TableNodes, c.Bytes(), blob); err != nil {
		return cid.Undef, utils.Wrap(utils.KindStorage, err, "persist node")
	}

	if err := s.indexNode(ctx, c, signed, parents); err != nil {
		return cid.Undef, err
	}

	s.logger.WithFields(logrus.Fields{
		"cid":    c.String(),
		"author": signed.Inner.Author,
		"scope":  signed.Inner.Metadata.Scope,
	}).Info("dag node committed")

	return c, nil
}

func (s *DAGStore) indexNode(ctx context.Context, c cid.Cid, signed *dagnode.SignedNode, parents []cid.Cid) error {
	key := c.Bytes()

	if err := s.kv.Append(ctx, storekv.TableByAuthor, []byte(signed.Inner.Author), key); err != nil {
		return utils.Wrap(utils.KindStorage, err, "index by_author")
	}
	if err := s.kv.Append(ctx, storekv.TableByPayloadType, []byte(signed.Inner.Payload.Kind), key); err != nil {
		return utils.Wrap(utils.KindStorage, err, "index by_payload_type")
	}
	scopeKey := scopeIndexKey(signed.Inner.Metadata.Scope, signed.Inner.Metadata.ScopeID)
	if err := s.kv.Append(ctx, storekv.TableByScope, scopeKey, key); err != nil {
		return utils.Wrap(utils.KindStorage, err, "index by_scope")
	}

	// Tip bookkeeping: this node is a tip unless something already points
	// to it (impossible on first insert, but kept for clarity); its parents
	// are no longer tips.
	if err := s.kv.Put(ctx, storekv.TableTips, key, []byte{1}); err != nil {
		return utils.Wrap(utils.KindStorage, err, "mark tip")
	}
	for _, p := range parents {
		if err := s.kv.Delete(ctx, storekv.TableTips, p.Bytes()); err != nil {
			return utils.Wrap(utils.KindStorage, err, "unmark parent tip")
		}
		if err := s.kv.Append(ctx, storekv.TableChildren, p.Bytes(), key); err != nil {
			return utils.Wrap(utils.KindStorage, err, "index children")
		}
	}
	return nil
}

func scopeIndexKey(scope dagnode.Scope, scopeID string) []byte {
	return []byte(string(scope) + "|" + scopeID)
}

func (s *DAGStore) containsLocked(ctx context.Context, c cid.Cid) (bool, error) {
	_, found, err := s.kv.Get(ctx, storekv.TableNodes, c.Bytes())
	if err != nil {
		return false, utils.Wrap(utils.KindStorage, err, "contains check")
	}
	return found, nil
}

func (s *DAGStore) Contains(ctx context.Context, c cid.Cid) (bool, error) {
	return s.containsLocked(ctx, c)
}

// GetNode fails with a NotFound-kind error if c is absent.
func (s *DAGStore) GetNode(ctx context.Context, c cid.Cid) (*dagnode.SignedNode, error) {
	blob, found, err := s.kv.Get(ctx, storekv.TableNodes, c.Bytes())
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "get node")
	}
	if !found {
		return nil, utils.New(utils.KindNotFound, "node not found: "+c.String())
	}
	sn, err := dagnode.UnmarshalSignedNode(blob)
	if err != nil {
		return nil, err
	}
	if _, err := sn.CID(); err != nil {
		return nil, err
	}
	return sn, nil
}

// GetData returns the raw stored blob for c, or ok=false if absent.
func (s *DAGStore) GetData(ctx context.Context, c cid.Cid) ([]byte, bool, error) {
	blob, found, err := s.kv.Get(ctx, storekv.TableNodes, c.Bytes())
	if err != nil {
		return nil, false, utils.Wrap(utils.KindStorage, err, "get data")
	}
	return blob, found, nil
}

// GetTips returns nodes with no known children.
func (s *DAGStore) GetTips(ctx context.Context) ([]cid.Cid, error) {
	keys, err := s.kv.List(ctx, storekv.TableTips, nil)
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list tips")
	}
	out := make([]cid.Cid, 0, len(keys))
	for _, k := range keys {
		c, err := cid.Cast(k)
		if err != nil {
			return nil, utils.Wrap(utils.KindIntegrity, err, "cast tip key")
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *DAGStore) loadAllNodes(ctx context.Context) ([]*dagnode.SignedNode, error) {
	keys, err := s.kv.List(ctx, storekv.TableNodes, nil)
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list nodes")
	}
	out := make([]*dagnode.SignedNode, 0, len(keys))
	for _, k := range keys {
		c, err := cid.Cast(k)
		if err != nil {
			return nil, utils.Wrap(utils.KindIntegrity, err, "cast node key")
		}
		sn, err := s.GetNode(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, nil
}

// GetOrderedNodes returns every stored node topologically ordered (parents
// before children), tie-broken on (timestamp asc, cid asc) for
// determinism.
func (s *DAGStore) GetOrderedNodes(ctx context.Context) ([]*dagnode.SignedNode, error) {
	nodes, err := s.loadAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	return topoSort(nodes)
}

func topoSort(nodes []*dagnode.SignedNode) ([]*dagnode.SignedNode, error) {
	byCid := make(map[string]*dagnode.SignedNode, len(nodes))
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		c, err := n.CID()
		if err != nil {
			return nil, err
		}
		byCid[c.String()] = n
		if _, ok := indegree[c.String()]; !ok {
			indegree[c.String()] = 0
		}
	}
	children := make(map[string][]string)
	for _, n := range nodes {
		c, _ := n.CID()
		for _, p := range n.Inner.Parents {
			if _, ok := byCid[p]; !ok {
				continue // parent not in this node set (e.g. partial snapshot)
			}
			children[p] = append(children[p], c.String())
			indegree[c.String()]++
		}
	}

	ready := make([]string, 0)
	for cidStr, deg := range indegree {
		if deg == 0 {
			ready = append(ready, cidStr)
		}
	}
	sortByTimestampThenCid(ready, byCid)

	out := make([]*dagnode.SignedNode, 0, len(nodes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		out = append(out, byCid[next])
		newlyReady := make([]string, 0)
		for _, child := range children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		sortByTimestampThenCid(newlyReady, byCid)
		ready = mergeSorted(ready, newlyReady, byCid)
	}
	if len(out) != len(nodes) {
		return nil, utils.New(utils.KindIntegrity, "cycle detected in dag node set")
	}
	return out, nil
}

func sortByTimestampThenCid(ids []string, byCid map[string]*dagnode.SignedNode) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := byCid[ids[i]], byCid[ids[j]]
		if a.Inner.Metadata.Timestamp != b.Inner.Metadata.Timestamp {
			return a.Inner.Metadata.Timestamp < b.Inner.Metadata.Timestamp
		}
		return ids[i] < ids[j]
	})
}

// mergeSorted merges two already-sorted (by timestamp,cid) id lists,
// keeping the combined list sorted so ready-queue order stays deterministic.
func mergeSorted(a, b []string, byCid map[string]*dagnode.SignedNode) []string {
	if len(b) == 0 {
		return a
	}
	merged := append(a, b...)
	sortByTimestampThenCid(merged, byCid)
	return merged
}

func (s *DAGStore) GetNodesByAuthor(ctx context.Context, did identity.Did) ([]*dagnode.SignedNode, error) {
	keys, err := s.kv.GetList(ctx, storekv.TableByAuthor, []byte(did))
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "get by author")
	}
	return s.loadKeys(ctx, keys)
}

func (s *DAGStore) GetNodesByPayloadType(ctx context.Context, kind dagnode.Kind) ([]*dagnode.SignedNode, error) {
	keys, err := s.kv.GetList(ctx, storekv.TableByPayloadType, []byte(kind))
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "get by payload type")
	}
	return s.loadKeys(ctx, keys)
}

func (s *DAGStore) GetNodesByScope(ctx context.Context, scope dagnode.Scope, scopeID string) ([]*dagnode.SignedNode, error) {
	keys, err := s.kv.GetList(ctx, storekv.TableByScope, scopeIndexKey(scope, scopeID))
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "get by scope")
	}
	return s.loadKeys(ctx, keys)
}

func (s *DAGStore) loadKeys(ctx context.Context, keys [][]byte) ([]*dagnode.SignedNode, error) {
	out := make([]*dagnode.SignedNode, 0, len(keys))
	for _, k := range keys {
		c, err := cid.Cast(k)
		if err != nil {
			return nil, utils.Wrap(utils.KindIntegrity, err, "cast index key")
		}
		sn, err := s.GetNode(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, nil
}

// FindPath returns the shortest directed path (parent -> child direction)
// from `from` to `to`, or an empty slice if no path exists.
func (s *DAGStore) FindPath(ctx context.Context, from, to cid.Cid) ([]*dagnode.SignedNode, error) {
	if from == to {
		n, err := s.GetNode(ctx, from)
		if err != nil {
			return nil, err
		}
		return []*dagnode.SignedNode{n}, nil
	}
	type frame struct {
		c    cid.Cid
		prev string
	}
	visited := map[string]string{from.String(): ""}
	queue := []cid.Cid{from}
	found := false
	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]
		children, err := s.kv.GetList(ctx, storekv.TableChildren, cur.Bytes())
		if err != nil {
			return nil, utils.Wrap(utils.KindStorage, err, "get children")
		}
		for _, ck := range children {
			childCid, err := cid.Cast(ck)
			if err != nil {
				return nil, utils.Wrap(utils.KindIntegrity, err, "cast child key")
			}
			if _, seen := visited[childCid.String()]; seen {
				continue
			}
			visited[childCid.String()] = cur.String()
			if childCid == to {
				found = true
				break
			}
			queue = append(queue, childCid)
		}
	}
	if !found {
		return nil, nil
	}
	// Reconstruct path from `to` back to `from`.
	pathStrs := []string{to.String()}
	cur := to.String()
	for cur != from.String() {
		prev := visited[cur]
		pathStrs = append(pathStrs, prev)
		cur = prev
	}
	// Reverse.
	for i, j := 0, len(pathStrs)-1; i < j; i, j = i+1, j-1 {
		pathStrs[i], pathStrs[j] = pathStrs[j], pathStrs[i]
	}
	out := make([]*dagnode.SignedNode, 0, len(pathStrs))
	for _, s2 := range pathStrs {
		c, err := canon.ParseCID(s2)
		if err != nil {
			return nil, err
		}
		n, err := s.GetNode(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// VerifyBranch walks parents depth-first from tip, verifying each node's
// Cid, signature, and parent presence, failing at the first violation with
// the offending Cid attached to the error.
func (s *DAGStore) VerifyBranch(ctx context.Context, tip cid.Cid, resolver identity.PublicKeyResolver) error {
	visited := make(map[string]bool)
	stack := []cid.Cid{tip}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur.String()] {
			continue
		}
		visited[cur.String()] = true

		blob, found, err := s.kv.Get(ctx, storekv.TableNodes, cur.Bytes())
		if err != nil {
			return utils.Wrap(utils.KindStorage, err, "verify branch: load "+cur.String())
		}
		if !found {
			return utils.New(utils.KindNotFound, "verify branch: node not found "+cur.String())
		}
		sn, err := dagnode.UnmarshalSignedNode(blob)
		if err != nil {
			return utils.Wrap(utils.KindIntegrity, err, "verify branch: decode "+cur.String())
		}
		recomputed, err := sn.CID()
		if err != nil {
			return err
		}
		if recomputed != cur {
			return utils.New(utils.KindIntegrity, "verify branch: cid mismatch at "+cur.String())
		}
		if err := sn.VerifySignature(resolver); err != nil {
			return utils.Wrap(utils.KindSignature, err, "verify branch: signature at "+cur.String())
		}
		parents, err := sn.Inner.ParentCIDs()
		if err != nil {
			return err
		}
		for _, p := range parents {
			ok, err := s.containsLocked(ctx, p)
			if err != nil {
				return err
			}
			if !ok {
				return utils.New(utils.KindStructural, "verify branch: missing parent "+p.String()+" of "+cur.String())
			}
			stack = append(stack, p)
		}
	}
	return nil
}
