// Package repertoire builds an opening repertoire tree breadth-first from
// aggregate position statistics.
package repertoire

import (
	"sort"

	"github.com/freeeve/repertoire/internal/explorer"
	"github.com/freeeve/repertoire/internal/scorer"
)

// RootMove is the sentinel move label for a root node that was not reached
// by a single move.
const RootMove = "Starting Position"

// Node is one position in the repertoire tree. Move is the move that led
// into the position (RootMove at the root); Outcome and Score are nil only
// for the root. A node owns its children; there is no sharing and no parent
// link, the builder never walks upward.
type Node struct {
	Move    string
	FEN     string
	Outcome *explorer.MoveOutcome
	Score   *scorer.ScoreDetails

	Children          []*Node
	IsMainline        bool
	TerminationReason string
}

// TotalScore returns the node's composite score, 0 for the root.
func (n *Node) TotalScore() float64 {
	if n.Score == nil {
		return 0
	}
	return n.Score.TotalScore
}

// AddChild appends a child. The very first child is provisionally flagged
// mainline; SortChildren settles the flag once the node is fully expanded.
func (n *Node) AddChild(child *Node) {
	n.Children = append(n.Children, child)
	if len(n.Children) == 1 && !child.IsMainline {
		child.IsMainline = true
	}
}

// SortChildren orders children by total score descending (stable, so ties
// keep insertion order) and marks exactly the first one mainline.
func (n *Node) SortChildren() {
	sort.SliceStable(n.Children, func(i, j int) bool {
		return n.Children[i].TotalScore() > n.Children[j].TotalScore()
	})
	if len(n.Children) == 0 {
		return
	}
	for _, child := range n.Children {
		child.IsMainline = false
	}
	n.Children[0].IsMainline = true
}

// Count returns the number of nodes in the subtree, including n.
func (n *Node) Count() int {
	count := 1
	for _, child := range n.Children {
		count += child.Count()
	}
	return count
}
