package repertoire

import (
	"strings"
	"testing"

	"github.com/freeeve/repertoire/internal/rules"
)

// repertoireTree builds a small fixture: 1. e4 with replies c5 (mainline,
// answered by 2. Nf3) and e5.
func repertoireTree() *Node {
	nf3 := scoredNode("Nf3", 0.7)
	nf3.TerminationReason = "Max depth reached"

	c5 := scoredNode("c5", 0.5)
	c5.AddChild(nf3)

	e5 := scoredNode("e5", 0.3)
	e5.TerminationReason = "Insufficient games (30 < 50)"

	e4 := scoredNode("e4", 0.8)
	e4.AddChild(c5)
	e4.AddChild(e5)

	root := &Node{Move: RootMove, FEN: rules.StartingFEN()}
	root.AddChild(e4)
	return root
}

func movetext(out string) string {
	_, body, ok := strings.Cut(out, "\n\n")
	if !ok {
		return ""
	}
	return strings.Join(strings.Fields(body), " ")
}

func TestGenerator_Tags(t *testing.T) {
	g := &Generator{}
	out := g.Generate(repertoireTree(), "Sicilian lines")

	for _, tag := range []string{
		`[Event "Sicilian lines"]`,
		`[White "Repertoire"]`,
		`[Result "*"]`,
	} {
		if !strings.Contains(out, tag) {
			t.Errorf("output missing tag %s", tag)
		}
	}
	if strings.Contains(out, "[SetUp") {
		t.Error("standard start must not carry SetUp/FEN tags")
	}
}

func TestGenerator_CustomRootPosition(t *testing.T) {
	fen := "rnbqkbnr/pp1ppppp/8/2p5/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2"
	root := &Node{Move: RootMove, FEN: fen}
	root.AddChild(scoredNode("Nf3", 0.7))
	root.Children[0].TerminationReason = "Max depth reached"

	g := &Generator{}
	out := g.Generate(root, "From position")

	if !strings.Contains(out, `[SetUp "1"]`) {
		t.Error("custom start needs a SetUp tag")
	}
	if !strings.Contains(out, `[FEN "`+fen+`"]`) {
		t.Error("custom start needs a FEN tag")
	}
	if got := movetext(out); got != "2. Nf3 *" {
		t.Errorf("movetext = %q, want numbering from the FEN", got)
	}
}

func TestGenerator_BlackToMoveRoot(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	root := &Node{Move: RootMove, FEN: fen}
	root.AddChild(scoredNode("c5", 0.5))
	root.Children[0].TerminationReason = "Max depth reached"

	g := &Generator{}
	out := g.Generate(root, "Reply")

	if got := movetext(out); got != "1... c5 *" {
		t.Errorf("movetext = %q, want Black numbering", got)
	}
}

func TestGenerator_VariationStructure(t *testing.T) {
	g := &Generator{}
	out := g.Generate(repertoireTree(), "Test")

	want := "1. e4 1... c5 ( 1... e5 ) 2. Nf3 *"
	if got := movetext(out); got != want {
		t.Errorf("movetext = %q, want %q", got, want)
	}
}

func TestGenerator_Comments(t *testing.T) {
	g := &Generator{IncludeComments: true}
	out := g.Generate(repertoireTree(), "Test")

	if !strings.Contains(out, "{ Score: 0.800") {
		t.Error("move comments missing score breakdown")
	}
	if !strings.Contains(out, "{ Max depth reached }") {
		t.Error("leaf missing termination comment")
	}
	if !strings.Contains(out, "{ Insufficient games (30 < 50) }") {
		t.Error("variation leaf missing termination comment")
	}
}

func TestGenerator_CommentsOffByDefault(t *testing.T) {
	g := &Generator{}
	out := g.Generate(repertoireTree(), "Test")
	if strings.Contains(out, "{") {
		t.Errorf("comments rendered without IncludeComments:\n%s", out)
	}
}

func TestGenerator_LineWrapping(t *testing.T) {
	root := &Node{Move: RootMove, FEN: rules.StartingFEN()}
	node := root
	for i := 0; i < 60; i++ {
		child := scoredNode("Nf3", 0.5)
		node.AddChild(child)
		node = child
	}
	node.TerminationReason = "Max depth reached"

	g := &Generator{}
	out := g.Generate(root, "Long line")

	for _, line := range strings.Split(out, "\n") {
		if len(line) > 80 {
			t.Errorf("line exceeds 80 columns: %q", line)
		}
	}
}
