// Package storekv provides the byte-addressable blob store with atomic
// write that the DAG core assumes as its persistence boundary. The KV
// backend itself is treated as external; this package is the thin
// capability interface the core programs against — one interface, backend
// choice is a composition-root decision. The default backend is an
// embedded, bucket-per-table, atomically-committed go.etcd.io/bbolt store;
// the in-memory implementation mirrors the same column-family layout for
// tests.
package storekv

import "context"

// Store is a column-family-organized byte-addressable KV backend with
// atomic per-table writes. Table names correspond to the core's persisted
// state layout (nodes, by_author, by_payload_type, by_scope, tips,
// trustbundles, federation_index, policy_current, membership_index).
type Store interface {
	// Get returns the value for key in table, or (nil, false, nil) if
	// absent.
	Get(ctx context.Context, table string, key []byte) ([]byte, bool, error)
	// Put atomically writes key=value in table.
	Put(ctx context.Context, table string, key, value []byte) error
	// Delete atomically removes key from table. Deleting an absent key is a
	// no-op.
	Delete(ctx context.Context, table string, key []byte) error
	// List returns all keys in table with the given prefix (prefix may be
	// empty to list all keys), in ascending byte order.
	List(ctx context.Context, table string, prefix []byte) ([][]byte, error)
	// Append adds value to the ordered list stored at key in table,
	// creating it if absent. Used for multi-valued indices like by_author.
	Append(ctx context.Context, table string, key, value []byte) error
	// GetList returns the ordered list stored at key in table.
	GetList(ctx context.Context, table string, key []byte) ([][]byte, error)
	// Close releases backend resources.
	Close() error
}

// Column families used by the DAG Store and its derived views.
const (
	TableNodes           = "nodes"
	TableByAuthor        = "by_author"
	TableByPayloadType   = "by_payload_type"
	TableByScope         = "by_scope"
	TableTips            = "tips"
	TableTrustBundles    = "trustbundles"
	TableFederationIndex = "federation_index"
	TablePolicyCurrent   = "policy_current"
	TableMembershipIndex = "membership_index"
	TableReceipts        = "receipts"
	TableRevocations     = "revocations"
	TableJoinState       = "join_state"
	// TableChildren is a derived index (parent cid -> [child cid]) the DAG
	// Store maintains to answer get_tips and find_path without a full scan.
	TableChildren = "children"
)
