package coordinator

type Phase int

const (
	PhaseTrain Phase = iota
	PhaseEvaluate
	PhaseAggregate
	PhaseSelect
	PhaseAuction
	PhaseDistribute
	PhaseVerify
	PhaseAdvance
)

var phaseNames = [...]string{
	PhaseTrain:      "train",
	PhaseEvaluate:   "evaluate",
	PhaseAggregate:  "aggregate",
	PhaseSelect:     "select",
	PhaseAuction:    "auction",
	PhaseDistribute: "distribute",
	PhaseVerify:     "verify",
	PhaseAdvance:    "advance",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Next returns the phase after p. The phase after advance is train of the
// following round, reported by wrapped.
func (p Phase) Next() (next Phase, wrapped bool) {
	if p == PhaseAdvance {
		return PhaseTrain, true
	}
	return p + 1, false
}

// Commits reports whether p is part of the section that changes ledger
// payouts and the round counter.
func (p Phase) Commits() bool {
	return p >= PhaseDistribute
}
