package quorum

import (
	"time"

	"github.com/intercoop-network/dag-core/internal/identity"
)

// Decision is a governance vote's choice.
type Decision string

const (
	DecisionYes     Decision = "yes"
	DecisionNo      Decision = "no"
	DecisionAbstain Decision = "abstain"
	DecisionVeto    Decision = "veto"
)

// Vote is one credential cast by a voter on a proposal.
type Vote struct {
	ProposalID  string
	Voter       identity.Did
	Decision    Decision
	VotingPower uint64 // defaults to 1 if zero
	CastAt      time.Time
}

func (v Vote) power() uint64 {
	if v.VotingPower == 0 {
		return 1
	}
	return v.VotingPower
}

// Outcome is the result of tallying a proposal's votes.
type Outcome string

const (
	OutcomePassed       Outcome = "passed"
	OutcomeFailed       Outcome = "failed"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Rule is a governance threshold rule (distinct from the TrustBundle
// Config above).
type Rule struct {
	Kind           RuleKind
	PercentNumer   int    // for RulePercentage: p in "p%"
	WeightedNeed   uint64 // for RuleWeighted: the required yes-weight
	Members      []identity.Did
	VotingStart  time.Time
	VotingEnd    time.Time
}

type RuleKind string

const (
	RuleMajority   RuleKind = "majority"
	RulePercentage RuleKind = "percentage"
	RuleUnanimous  RuleKind = "unanimous"
	RuleWeighted   RuleKind = "weighted"
)

// Tally holds the aggregated power counts after filtering/deduplicating
// votes.
type Tally struct {
	YesPower, NoPower, AbstainPower uint64
	YesVoters, NoVoters             []identity.Did
	VotesReceived                   int
	Outcome                         Outcome
}

// Aggregate filters, deduplicates (latest-by-CastAt wins), and tallies
// votes against rule, applying the veto short-circuit and the
// voting-window / membership checks.
func Aggregate(rule Rule, votes []Vote, now time.Time) Tally {
	memberSet := membersSet(rule.Members)

	latest := make(map[identity.Did]Vote)
	for _, v := range votes {
		if v.ProposalID == "" {
			continue
		}
		if v.CastAt.Before(rule.VotingStart) || v.CastAt.After(rule.VotingEnd) {
			continue
		}
		if memberSet != nil {
			if _, ok := memberSet[v.Voter]; !ok {
				continue
			}
		}
		if existing, ok := latest[v.Voter]; !ok || v.CastAt.After(existing.CastAt) {
			latest[v.Voter] = v
		}
	}

	var t Tally
	vetoed := false
	for _, v := range latest {
		t.VotesReceived++
		switch v.Decision {
		case DecisionYes:
			t.YesPower += v.power()
			t.YesVoters = append(t.YesVoters, v.Voter)
		case DecisionNo:
			t.NoPower += v.power()
			t.NoVoters = append(t.NoVoters, v.Voter)
		case DecisionAbstain:
			t.AbstainPower += v.power()
		case DecisionVeto:
			vetoed = true
		}
	}

	if vetoed {
		t.Outcome = OutcomeFailed
		return t
	}

	if now.Before(rule.VotingEnd) {
		t.Outcome = OutcomeInconclusive
		return t
	}

	t.Outcome = evaluateRule(rule, t, memberSet, latest)
	return t
}

func membersSet(members []identity.Did) map[identity.Did]struct{} {
	if len(members) == 0 {
		return nil
	}
	m := make(map[identity.Did]struct{}, len(members))
	for _, d := range members {
		m[d] = struct{}{}
	}
	return m
}

func evaluateRule(rule Rule, t Tally, memberSet map[identity.Did]struct{}, latest map[identity.Did]Vote) Outcome {
	switch rule.Kind {
	case RuleMajority:
		if t.VotesReceived > 0 && t.YesPower > t.NoPower {
			return OutcomePassed
		}
		return OutcomeFailed

	case RulePercentage:
		denom := t.YesPower + t.NoPower
		if denom == 0 {
			return OutcomeInconclusive
		}
		if t.YesPower*100 >= uint64(rule.PercentNumer)*denom {
			return OutcomePassed
		}
		return OutcomeFailed

	case RuleUnanimous:
		if t.NoPower > 0 || len(t.YesVoters) == 0 {
			return OutcomeFailed
		}
		if memberSet != nil {
			for m := range memberSet {
				if _, voted := latest[m]; !voted {
					return OutcomeFailed
				}
			}
		}
		return OutcomePassed

	case RuleWeighted:
		if t.YesPower >= rule.WeightedNeed {
			return OutcomePassed
		}
		return OutcomeFailed

	default:
		return OutcomeInconclusive
	}
}

// EarlyRejectImpossible reports whether, given votes cast so far and the
// remaining eligible-but-not-yet-voted voters, it has become arithmetically
// impossible for yes-power to reach threshold. maxRemainingPower is the sum
// of voting power of members who have not yet cast a counted vote.
func EarlyRejectImpossible(currentYes, maxRemainingPower, threshold uint64) bool {
	bestCaseYes := currentYes + maxRemainingPower
	return bestCaseYes < threshold
}
