package repertoire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/freeeve/repertoire/internal/eco"
	"github.com/freeeve/repertoire/internal/rules"
)

// Generator renders a repertoire tree as a PGN game with variations. The
// mainline child is written first; every sibling becomes a parenthesized
// variation. Score breakdowns, opening names and termination reasons are
// attached as comments when IncludeComments is set.
type Generator struct {
	IncludeComments bool
	ECO             *eco.Database // optional opening annotations
}

// Generate renders the tree with the given title as the Event tag.
func (g *Generator) Generate(root *Node, title string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[Event %q]\n", title))
	sb.WriteString("[Site \"?\"]\n")
	sb.WriteString("[Date \"????.??.??\"]\n")
	sb.WriteString("[Round \"?\"]\n")
	sb.WriteString("[White \"Repertoire\"]\n")
	sb.WriteString("[Black \"?\"]\n")
	sb.WriteString("[Result \"*\"]\n")
	if root.FEN != rules.StartingFEN() {
		sb.WriteString("[SetUp \"1\"]\n")
		sb.WriteString(fmt.Sprintf("[FEN %q]\n", root.FEN))
	}
	sb.WriteString("\n")

	w := &tokenWriter{sb: &sb, limit: 80}
	moveNo, white := moveContext(root.FEN)
	g.renderChildren(w, root, moveNo, white)
	w.write("*")
	w.finish()

	return sb.String()
}

// renderChildren writes a node's subtree: mainline move, then each sibling
// variation in parentheses, then the mainline continuation.
func (g *Generator) renderChildren(w *tokenWriter, n *Node, moveNo int, white bool) {
	if len(n.Children) == 0 {
		return
	}

	main := n.Children[0]
	g.writeMove(w, main, moveNo, white)

	for _, alt := range n.Children[1:] {
		w.write("(")
		g.writeMove(w, alt, moveNo, white)
		g.renderChildren(w, alt, nextMoveNo(moveNo, white), !white)
		w.write(")")
	}

	g.renderChildren(w, main, nextMoveNo(moveNo, white), !white)
}

func (g *Generator) writeMove(w *tokenWriter, n *Node, moveNo int, white bool) {
	// Number every move, including Black's, so variations and comment
	// interruptions never leave a bare SAN token.
	if white {
		w.write(fmt.Sprintf("%d.", moveNo))
	} else {
		w.write(fmt.Sprintf("%d...", moveNo))
	}
	w.write(n.Move)

	if !g.IncludeComments {
		return
	}
	if n.Score != nil {
		w.write("{ " + n.Score.Comment() + " }")
	}
	if g.ECO != nil {
		if o := g.ECO.LookupFEN(n.FEN); o != nil {
			w.write(fmt.Sprintf("{ %s (%s) }", o.Name, o.ECO))
		}
	}
	if len(n.Children) == 0 && n.TerminationReason != "" {
		w.write("{ " + n.TerminationReason + " }")
	}
}

// moveContext extracts the fullmove number and side to move from a FEN.
func moveContext(fen string) (moveNo int, white bool) {
	moveNo, white = 1, true
	fields := strings.Fields(fen)
	if len(fields) >= 2 && fields[1] == "b" {
		white = false
	}
	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			moveNo = n
		}
	}
	return moveNo, white
}

func nextMoveNo(moveNo int, white bool) int {
	if white {
		return moveNo
	}
	return moveNo + 1
}

// tokenWriter joins tokens with spaces, wrapping lines near the limit.
type tokenWriter struct {
	sb      *strings.Builder
	limit   int
	lineLen int
}

func (w *tokenWriter) write(token string) {
	if w.lineLen > 0 && w.lineLen+1+len(token) > w.limit {
		w.sb.WriteString("\n")
		w.lineLen = 0
	} else if w.lineLen > 0 {
		w.sb.WriteString(" ")
		w.lineLen++
	}
	w.sb.WriteString(token)
	w.lineLen += len(token)
}

func (w *tokenWriter) finish() {
	if w.lineLen > 0 {
		w.sb.WriteString("\n")
	}
}
