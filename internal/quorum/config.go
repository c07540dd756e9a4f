// Package quorum implements two distinct quorum primitives: the
// TrustBundle signature-quorum predicate, and the governance
// vote-aggregation engine, kept separate from bundle signing. Error
// returns are explicit throughout, never panics, and signatures are
// restricted to Ed25519.
package quorum

import (
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// ConfigType selects the predicate a TrustBundle's signature set must
// satisfy.
type ConfigType string

const (
	TypeMajority  ConfigType = "majority"
	TypeThreshold ConfigType = "threshold"
	TypeWeighted  ConfigType = "weighted"
	TypeAll       ConfigType = "all"
)

// Config is quorum_config: the predicate type plus the set of eligible
// participants (and, for Weighted, their relative weights).
type Config struct {
	Type ConfigType `cbor:"type"`
	// ThresholdPercent is used when Type == TypeThreshold, 0-100.
	ThresholdPercent int `cbor:"threshold_percent,omitempty"`
	// Weights is used when Type == TypeWeighted: Did -> weight.
	Weights      map[identity.Did]uint64 `cbor:"weights,omitempty"`
	Participants []identity.Did          `cbor:"participants"`
}

// Validate checks the config is internally consistent.
func (c Config) Validate() error {
	if len(c.Participants) == 0 {
		return utils.New(utils.KindStructural, "quorum config has no participants")
	}
	switch c.Type {
	case TypeMajority, TypeAll:
	case TypeThreshold:
		if c.ThresholdPercent < 0 || c.ThresholdPercent > 100 {
			return utils.New(utils.KindStructural, "threshold percent must be within 0-100")
		}
	case TypeWeighted:
		if len(c.Weights) == 0 {
			return utils.New(utils.KindStructural, "weighted quorum config requires weights")
		}
	default:
		return utils.New(utils.KindStructural, "unknown quorum config type: "+string(c.Type))
	}
	return nil
}

func (c Config) isParticipant(d identity.Did) bool {
	for _, p := range c.Participants {
		if p == d {
			return true
		}
	}
	return false
}

// Satisfied evaluates the quorum predicate against the set of signer Dids
// whose signatures independently verified. Signers not present in
// Participants are ignored — stray signatures are not rejected, just not
// counted toward the predicate.
func (c Config) Satisfied(validSigners []identity.Did) bool {
	n := len(c.Participants)
	if n == 0 {
		return false
	}
	counted := 0
	countedWeight := uint64(0)
	for _, s := range validSigners {
		if !c.isParticipant(s) {
			continue
		}
		counted++
		countedWeight += c.Weights[s]
	}

	switch c.Type {
	case TypeMajority:
		return counted > n/2
	case TypeThreshold:
		need := ceilDiv(c.ThresholdPercent*n, 100)
		if c.ThresholdPercent > 0 && n > 0 && need < 1 {
			need = 1
		}
		return counted >= need
	case TypeWeighted:
		total := uint64(0)
		for _, w := range c.Weights {
			total += w
		}
		return countedWeight > total/2
	case TypeAll:
		return counted == n
	default:
		return false
	}
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}
