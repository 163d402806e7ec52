package repertoire

// BranchPolicy decides how a node's qualifying moves become subtrees.
type BranchPolicy int

const (
	// ExpandAll keeps every qualifying move and schedules each resulting
	// position for further expansion.
	ExpandAll BranchPolicy = iota
	// CollapseToBest keeps every qualifying opponent reply but answers each
	// with the single best own-side continuation, which becomes the reply's
	// only (mainline) child.
	CollapseToBest
)

func (p BranchPolicy) String() string {
	switch p {
	case ExpandAll:
		return "expand-all"
	case CollapseToBest:
		return "collapse-to-best"
	default:
		return "unknown"
	}
}

// policyFor selects the branching policy for the side to move. The tree fans
// out on the repertoire's own (White) moves and collapses to one forced
// continuation immediately after each opponent reply.
func policyFor(whiteToMove bool) BranchPolicy {
	if whiteToMove {
		return ExpandAll
	}
	return CollapseToBest
}
