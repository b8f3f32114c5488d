package graph

import (
	"fmt"
	"testing"

	"github.com/modulardsp/synthgraph/pkg/framework/program"
	"pgregory.net/rapid"
)

// randomChain builds a graph of n "mid" nodes wired src -> mid_0 -> mid_1 ->
// ... -> sink, with the AddNode calls issued in a shuffled order so the
// resulting operation list cannot rely on insertion order to be correct.
func randomChain(t *rapid.T) (*Graph, []NodeID) {
	n := rapid.IntRange(1, 12).Draw(t, "chainLen")
	order := rapid.Permutation(intRange(n)).Draw(t, "addOrder")

	g := New()
	ids := make([]NodeID, n)
	for _, i := range order {
		ids[i] = g.AddNode("mid", i)
	}
	src := g.AddNode("src", 0)
	sink := g.AddNode("sink", 0)

	g.Connect(src, "out_a", ids[0], "in_a")
	for i := 0; i < n-1; i++ {
		g.Connect(ids[i], "out_a", ids[i+1], "in_a")
	}
	g.Connect(ids[n-1], "out_a", sink, "in_a")

	return g, ids
}

func intRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Property: compiling the same graph twice always produces the same
// operation order and slot assignment, regardless of the order nodes were
// added in.
func TestPropertyCompileIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := testRegistry()
		g, _ := randomChain(t)

		p1, cerr := Compile(reg, g, 44100, nil, false)
		if cerr != nil {
			t.Fatalf("compile 1: %v", cerr)
		}
		p2, cerr := Compile(reg, g, 44100, nil, false)
		if cerr != nil {
			t.Fatalf("compile 2: %v", cerr)
		}

		if len(p1.Operations) != len(p2.Operations) {
			t.Fatalf("operation count differs between identical compiles: %d vs %d",
				len(p1.Operations), len(p2.Operations))
		}
		for i := range p1.Operations {
			a, b := p1.Operations[i], p2.Operations[i]
			if a.Kind != b.Kind || a.Instance != b.Instance || a.InStart != b.InStart || a.OutStart != b.OutStart {
				t.Fatalf("operation %d differs between identical compiles: %+v vs %+v", i, a, b)
			}
		}
	})
}

// Property: every operation in a compiled chain appears strictly after the
// operations that feed it, for chains of arbitrary length and add-order.
func TestPropertyCompileRespectsTopologicalOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := testRegistry()
		g, ids := randomChain(t)

		prog, cerr := Compile(reg, g, 44100, nil, false)
		if cerr != nil {
			t.Fatalf("compile: %v", cerr)
		}

		pos := make(map[program.InstanceKey]int, len(prog.Operations))
		for i, op := range prog.Operations {
			pos[program.InstanceKey{Kind: op.Kind, Instance: op.Instance}] = i
		}

		for i := 0; i < len(ids)-1; i++ {
			a := pos[program.InstanceKey{Kind: "mid", Instance: i}]
			b := pos[program.InstanceKey{Kind: "mid", Instance: i + 1}]
			if a >= b {
				t.Fatalf("mid_%d scheduled at or after mid_%d (positions %d, %d)", i, i+1, a, b)
			}
		}
	})
}

// Property: adding a single back-edge to an otherwise-valid chain always
// yields ErrCycle, never a silent schedule.
func TestPropertyCompileRejectsAnyBackEdge(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := testRegistry()
		g, ids := randomChain(t)

		if len(ids) < 2 {
			return
		}
		from := rapid.IntRange(1, len(ids)-1).Draw(t, "backEdgeFrom")
		to := rapid.IntRange(0, from-1).Draw(t, "backEdgeTo")
		g.Connect(ids[from], "out_a", ids[to], "in_a")

		_, cerr := Compile(reg, g, 44100, nil, false)
		if cerr == nil {
			t.Fatalf("expected a cycle error after adding back-edge mid_%d -> mid_%d, got nil", from, to)
		}
		if cerr.Kind != ErrCycle {
			t.Fatalf("expected ErrCycle after adding back-edge mid_%d -> mid_%d, got %v", from, to, cerr.Kind)
		}
	})
}

func TestPropertyCompileIsStableUnderRepeatedPermutation(t *testing.T) {
	reg := testRegistry()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(t, "n")
		var first *program.Program
		for trial := 0; trial < 3; trial++ {
			order := rapid.Permutation(intRange(n)).Draw(t, fmt.Sprintf("order_%d", trial))
			g := New()
			ids := make([]NodeID, n)
			for _, i := range order {
				ids[i] = g.AddNode("mid", i)
			}
			src := g.AddNode("src", 0)
			sink := g.AddNode("sink", 0)
			g.Connect(src, "out_a", ids[0], "in_a")
			for i := 0; i < n-1; i++ {
				g.Connect(ids[i], "out_a", ids[i+1], "in_a")
			}
			g.Connect(ids[n-1], "out_a", sink, "in_a")

			prog, cerr := Compile(reg, g, 44100, nil, false)
			if cerr != nil {
				t.Fatalf("compile: %v", cerr)
			}
			if first == nil {
				first = prog
				continue
			}
			if len(first.Operations) != len(prog.Operations) {
				t.Fatalf("operation count changed across add-order permutations: %d vs %d",
					len(first.Operations), len(prog.Operations))
			}
			for i := range first.Operations {
				a, b := first.Operations[i], prog.Operations[i]
				if a.Kind != b.Kind || a.Instance != b.Instance {
					t.Fatalf("operation %d identity changed across add-order permutations: %+v vs %+v", i, a, b)
				}
			}
		}
	})
}
