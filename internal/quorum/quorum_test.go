package quorum

import (
	"testing"
	"time"

	"github.com/intercoop-network/dag-core/internal/identity"
)

func TestConfigSatisfiedMajority(t *testing.T) {
	p := []identity.Did{"a", "b", "c"}
	c := Config{Type: TypeMajority, Participants: p}
	if c.Satisfied([]identity.Did{"a"}) {
		t.Fatalf("1/3 should not satisfy majority")
	}
	if !c.Satisfied([]identity.Did{"a", "b"}) {
		t.Fatalf("2/3 should satisfy majority")
	}
}

func TestConfigSatisfiedThreshold67(t *testing.T) {
	p := []identity.Did{"a", "b", "c"}
	c := Config{Type: TypeThreshold, ThresholdPercent: 67, Participants: p}
	if c.Satisfied([]identity.Did{"a"}) {
		t.Fatalf("1/3 should not satisfy 67% threshold")
	}
	if !c.Satisfied([]identity.Did{"a", "b"}) {
		t.Fatalf("2/3 should satisfy 67% threshold")
	}
}

func TestConfigSatisfiedAll(t *testing.T) {
	p := []identity.Did{"a", "b"}
	c := Config{Type: TypeAll, Participants: p}
	if c.Satisfied([]identity.Did{"a"}) {
		t.Fatalf("expected all-but-one to fail All quorum")
	}
	if !c.Satisfied([]identity.Did{"a", "b"}) {
		t.Fatalf("expected both signers to satisfy All quorum")
	}
}

func TestConfigSatisfiedWeighted(t *testing.T) {
	c := Config{
		Type:         TypeWeighted,
		Participants: []identity.Did{"a", "b", "c"},
		Weights:      map[identity.Did]uint64{"a": 10, "b": 10, "c": 80},
	}
	if c.Satisfied([]identity.Did{"a", "b"}) {
		t.Fatalf("20/100 should not satisfy weighted majority")
	}
	if !c.Satisfied([]identity.Did{"c"}) {
		t.Fatalf("80/100 should satisfy weighted majority")
	}
}

func TestConfigIgnoresStraySigners(t *testing.T) {
	c := Config{Type: TypeAll, Participants: []identity.Did{"a"}}
	if !c.Satisfied([]identity.Did{"a", "stranger"}) {
		t.Fatalf("stray signer should be ignored, not rejected")
	}
}

func TestAggregateVetoShortCircuit(t *testing.T) {
	start := time.Unix(0, 0)
	end := time.Unix(100, 0)
	votes := []Vote{
		{ProposalID: "p1", Voter: "v1", Decision: DecisionYes, CastAt: time.Unix(10, 0)},
		{ProposalID: "p1", Voter: "v2", Decision: DecisionYes, CastAt: time.Unix(10, 0)},
		{ProposalID: "p1", Voter: "v3", Decision: DecisionYes, CastAt: time.Unix(10, 0)},
		{ProposalID: "p1", Voter: "v4", Decision: DecisionYes, CastAt: time.Unix(10, 0)},
		{ProposalID: "p1", Voter: "v5", Decision: DecisionVeto, CastAt: time.Unix(10, 0)},
	}
	rule := Rule{Kind: RuleMajority, VotingStart: start, VotingEnd: end}
	tally := Aggregate(rule, votes, end.Add(time.Second))
	if tally.Outcome != OutcomeFailed {
		t.Fatalf("expected veto to force Failed outcome, got %s", tally.Outcome)
	}
}

func TestAggregateInconclusiveBeforeVotingEnd(t *testing.T) {
	start := time.Unix(0, 0)
	end := time.Unix(100, 0)
	votes := []Vote{
		{ProposalID: "p1", Voter: "v1", Decision: DecisionYes, CastAt: time.Unix(10, 0)},
	}
	rule := Rule{Kind: RuleMajority, VotingStart: start, VotingEnd: end}
	tally := Aggregate(rule, votes, time.Unix(50, 0))
	if tally.Outcome != OutcomeInconclusive {
		t.Fatalf("expected inconclusive before voting end, got %s", tally.Outcome)
	}
}

func TestAggregateVoteAmendmentLatestWins(t *testing.T) {
	start := time.Unix(0, 0)
	end := time.Unix(200, 0)
	votes := []Vote{
		{ProposalID: "p1", Voter: "v1", Decision: DecisionNo, CastAt: time.Unix(100, 0)},
		{ProposalID: "p1", Voter: "v1", Decision: DecisionYes, CastAt: time.Unix(110, 0)},
	}
	rule := Rule{Kind: RuleMajority, VotingStart: start, VotingEnd: end}
	tally := Aggregate(rule, votes, end.Add(time.Second))
	if tally.YesPower != 1 || tally.NoPower != 0 {
		t.Fatalf("expected latest cast to supersede earlier, got yes=%d no=%d", tally.YesPower, tally.NoPower)
	}
	if tally.Outcome != OutcomePassed {
		t.Fatalf("expected passed outcome, got %s", tally.Outcome)
	}
}

func TestAggregatePercentageUndefinedWhenNoVotes(t *testing.T) {
	start := time.Unix(0, 0)
	end := time.Unix(100, 0)
	rule := Rule{Kind: RulePercentage, PercentNumer: 50, VotingStart: start, VotingEnd: end}
	tally := Aggregate(rule, nil, end.Add(time.Second))
	if tally.Outcome != OutcomeInconclusive {
		t.Fatalf("expected inconclusive with zero denominator, got %s", tally.Outcome)
	}
}

func TestAggregateUnanimousRequiresAllMembers(t *testing.T) {
	start := time.Unix(0, 0)
	end := time.Unix(100, 0)
	members := []identity.Did{"v1", "v2"}
	votes := []Vote{
		{ProposalID: "p1", Voter: "v1", Decision: DecisionYes, CastAt: time.Unix(10, 0)},
	}
	rule := Rule{Kind: RuleUnanimous, Members: members, VotingStart: start, VotingEnd: end}
	tally := Aggregate(rule, votes, end.Add(time.Second))
	if tally.Outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome when not all members voted, got %s", tally.Outcome)
	}
}

func TestAggregateVotesOutsideWindowDropped(t *testing.T) {
	start := time.Unix(50, 0)
	end := time.Unix(100, 0)
	votes := []Vote{
		{ProposalID: "p1", Voter: "v1", Decision: DecisionYes, CastAt: time.Unix(10, 0)}, // before window
		{ProposalID: "p1", Voter: "v2", Decision: DecisionYes, CastAt: time.Unix(200, 0)}, // after window
	}
	rule := Rule{Kind: RuleMajority, VotingStart: start, VotingEnd: end}
	tally := Aggregate(rule, votes, end.Add(time.Second))
	if tally.VotesReceived != 0 {
		t.Fatalf("expected both out-of-window votes dropped, got %d", tally.VotesReceived)
	}
}
