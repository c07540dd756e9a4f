// Package executorstub enforces the one boundary contract the core cares
// about for off-DAG execution: a module_cid identifies well-formed WASM
// bytes, and the executor that ran them must produce a result_cid anchored
// in an ExecutionReceipt. Running the module is out of scope for this
// package — it validates that submitted module bytes are a parseable WASM
// binary before the executor component (outside this core) is handed the
// job, and otherwise never instantiates or invokes them.
package executorstub

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// ValidateModule compiles wasmBytes against a fresh wasmer engine and
// reports whether it is a well-formed WASM module, without instantiating
// or executing it. It returns the module's content-addressed Cid for
// callers that go on to anchor a submission referencing it.
func ValidateModule(wasmBytes []byte) (moduleCID string, err error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	if _, err := wasmer.NewModule(store, wasmBytes); err != nil {
		return "", utils.Wrap(utils.KindStructural, err, "wasm module failed to compile")
	}
	c, err := canon.ComputeCID(wasmBytes)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// Submission is the boundary request handed to an out-of-process executor:
// "run this module, with this input, under this scope, and report back an
// ExecutionReceipt referencing result_cid". The core never sees the
// executor's internal state, only the Submission it issued and the
// Receipt it eventually verifies (internal/receipt).
type Submission struct {
	ModuleCID    string `json:"module_cid"`
	InputCID     string `json:"input_cid,omitempty"`
	Scope        string `json:"scope"`
	ScopeID      string `json:"scope_id"`
	FederationID string `json:"federation_id"`
	EventID      string `json:"event_id,omitempty"`
}
