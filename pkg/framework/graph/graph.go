// Package graph is the editing-side relational model: a set of nodes,
// connections, parameter values, atom values and modulation amounts. It
// is never seen by the audio thread; Compile turns it into a
// program.Program with integer slots and no names left to resolve.
package graph

import (
	"fmt"
	"sort"

	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/program"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
)

// NodeID identifies a node instance: (kind, instance index).
type NodeID struct {
	Kind     string
	Instance int
}

func (n NodeID) less(o NodeID) bool {
	if n.Kind != o.Kind {
		return n.Kind < o.Kind
	}
	return n.Instance < o.Instance
}

// PortRef names one port of one node instance.
type PortRef struct {
	Node NodeID
	Port string
}

// Connection is a directed edge from one node's output port to another
// node's input port.
type Connection struct {
	Src PortRef
	Dst PortRef
}

// Graph is the full relational description the compiler consumes.
type Graph struct {
	Nodes       []NodeID
	Connections []Connection
	Params      map[PortRef]float64
	Atoms       map[PortRef]portbuf.Atom
	Mods        map[PortRef]float64
}

func New() *Graph {
	return &Graph{
		Params: make(map[PortRef]float64),
		Atoms:  make(map[PortRef]portbuf.Atom),
		Mods:   make(map[PortRef]float64),
	}
}

func (g *Graph) AddNode(kind string, instance int) NodeID {
	id := NodeID{Kind: kind, Instance: instance}
	g.Nodes = append(g.Nodes, id)
	return id
}

func (g *Graph) Connect(srcNode NodeID, srcPort string, dstNode NodeID, dstPort string) {
	g.Connections = append(g.Connections, Connection{
		Src: PortRef{Node: srcNode, Port: srcPort},
		Dst: PortRef{Node: dstNode, Port: dstPort},
	})
}

func (g *Graph) SetParam(node NodeID, port string, value float64) {
	g.Params[PortRef{Node: node, Port: port}] = value
}

func (g *Graph) SetAtom(node NodeID, port string, value portbuf.Atom) {
	g.Atoms[PortRef{Node: node, Port: port}] = value
}

func (g *Graph) SetMod(node NodeID, port string, amount float64) {
	g.Mods[PortRef{Node: node, Port: port}] = amount
}

// ErrKind classifies a CompileError.
type ErrKind uint8

const (
	ErrUnknownKind ErrKind = iota
	ErrUnknownPort
	ErrTypeMismatch
	ErrCycle
	ErrInvalidModTarget
	ErrMissingEndpoint
)

// CompileError is the structured failure returned instead of a program.
type CompileError struct {
	Kind ErrKind
	Node NodeID
	Port string
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("graph: compile error (%s): %s", e.kindName(), e.Msg)
}

func (e *CompileError) kindName() string {
	switch e.Kind {
	case ErrUnknownKind:
		return "unknown-kind"
	case ErrUnknownPort:
		return "unknown-port"
	case ErrTypeMismatch:
		return "type-mismatch"
	case ErrCycle:
		return "cycle"
	case ErrInvalidModTarget:
		return "invalid-mod-target"
	case ErrMissingEndpoint:
		return "missing-endpoint"
	}
	return "unknown"
}

func newErr(kind ErrKind, node NodeID, port, msg string) *CompileError {
	return &CompileError{Kind: kind, Node: node, Port: port, Msg: msg}
}

// Compile validates g against reg, topologically orders its nodes,
// allocates slots, and produces a ready-to-run program. sampleRate seeds
// every freshly instantiated node's per-instance state. If prev is
// non-nil and preserveState is true, smoother targets, previous output
// values and existing instances' state are carried across instead.
func Compile(reg *registry.Registry, g *Graph, sampleRate float64, prev *program.Program, preserveState bool) (*program.Program, *CompileError) {
	defs := make(map[NodeID]*registry.Def, len(g.Nodes))
	for _, n := range g.Nodes {
		d, err := reg.Lookup(n.Kind)
		if err != nil {
			return nil, newErr(ErrUnknownKind, n, "", err.Error())
		}
		defs[n] = d
	}

	if cerr := validatePorts(g, defs); cerr != nil {
		return nil, cerr
	}

	order, cerr := topoSort(g)
	if cerr != nil {
		return nil, cerr
	}

	ops, inTotal, outTotal, atomTotal := allocateSlots(order, defs)

	inSlotOf := make(map[PortRef]int)
	outSlotOf := make(map[PortRef]int)
	atomSlotOf := make(map[PortRef]int)
	opByNode := make(map[NodeID]*program.Operation, len(ops))
	for i := range ops {
		op := &ops[i]
		opByNode[NodeID{Kind: op.Kind, Instance: op.Instance}] = op
		d := op.Def
		for j, p := range d.Inputs {
			inSlotOf[PortRef{Node: NodeID{Kind: op.Kind, Instance: op.Instance}, Port: p.Name}] = op.InStart + j
		}
		for j, p := range d.Outputs {
			outSlotOf[PortRef{Node: NodeID{Kind: op.Kind, Instance: op.Instance}, Port: p.Name}] = op.OutStart + j
		}
		for j, p := range d.Atoms {
			atomSlotOf[PortRef{Node: NodeID{Kind: op.Kind, Instance: op.Instance}, Port: p.Name}] = op.AtomStart + j
		}
	}

	prog := program.New(inTotal, outTotal, atomTotal)
	prog.SampleRate = sampleRate
	prog.Operations = ops

	instantiateState(ops, reg, sampleRate)
	initParams(prog, ops, inSlotOf, g)
	initAtoms(prog, atomSlotOf, g, defs)

	if cerr := wireConnections(prog, g, inSlotOf, outSlotOf); cerr != nil {
		return nil, cerr
	}

	if cerr := wireModulation(prog, g, &ops, inSlotOf, defs); cerr != nil {
		return nil, cerr
	}
	prog.Operations = ops

	if preserveState && prev != nil {
		preserveAcrossSwap(prog, prev, inSlotOf, outSlotOf)
	}

	return prog, nil
}

func validatePorts(g *Graph, defs map[NodeID]*registry.Def) *CompileError {
	checkPort := func(ref PortRef, list string) *CompileError {
		d, ok := defs[ref.Node]
		if !ok {
			return newErr(ErrMissingEndpoint, ref.Node, ref.Port, "references an unscheduled node")
		}
		var idx int
		switch list {
		case "in":
			idx = d.InputIndex(ref.Port)
		case "out":
			idx = d.OutputIndex(ref.Port)
		case "atom":
			idx = d.AtomIndex(ref.Port)
		}
		if idx < 0 {
			return newErr(ErrUnknownPort, ref.Node, ref.Port, "no such port on kind "+ref.Node.Kind)
		}
		return nil
	}

	for _, c := range g.Connections {
		if cerr := checkPort(c.Src, "out"); cerr != nil {
			return cerr
		}
		if cerr := checkPort(c.Dst, "in"); cerr != nil {
			return cerr
		}
	}
	for ref := range g.Params {
		if cerr := checkPort(ref, "in"); cerr != nil {
			return cerr
		}
	}
	for ref := range g.Atoms {
		if cerr := checkPort(ref, "atom"); cerr != nil {
			return cerr
		}
	}
	for ref := range g.Mods {
		if cerr := checkPort(ref, "in"); cerr != nil {
			return newErr(ErrInvalidModTarget, ref.Node, ref.Port, cerr.Msg)
		}
	}
	return nil
}

// topoSort builds the DAG induced by g's connections and returns a
// stable, deterministic topological order (ties broken by (kind,
// instance)), or a cycle error.
func topoSort(g *Graph) ([]NodeID, *CompileError) {
	inDegree := make(map[NodeID]int, len(g.Nodes))
	adj := make(map[NodeID][]NodeID, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n] = 0
	}
	for _, c := range g.Connections {
		adj[c.Src.Node] = append(adj[c.Src.Node], c.Dst.Node)
		inDegree[c.Dst.Node]++
	}

	all := append([]NodeID(nil), g.Nodes...)
	sort.Slice(all, func(i, j int) bool { return all[i].less(all[j]) })

	var ready []NodeID
	for _, n := range all {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].less(ready[j]) })

	var order []NodeID
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		next := append([]NodeID(nil), adj[n]...)
		sort.Slice(next, func(i, j int) bool { return next[i].less(next[j]) })
		for _, m := range next {
			inDegree[m]--
			if inDegree[m] == 0 {
				// insert keeping `ready` sorted
				pos := sort.Search(len(ready), func(i int) bool { return !ready[i].less(m) })
				ready = append(ready, NodeID{})
				copy(ready[pos+1:], ready[pos:])
				ready[pos] = m
			}
		}
	}

	if len(order) != len(g.Nodes) {
		for _, n := range all {
			if inDegree[n] > 0 {
				return nil, newErr(ErrCycle, n, "", "cycle detected among scheduled nodes")
			}
		}
		return nil, newErr(ErrCycle, NodeID{}, "", "cycle detected among scheduled nodes")
	}
	return order, nil
}

func allocateSlots(order []NodeID, defs map[NodeID]*registry.Def) (ops []program.Operation, inTotal, outTotal, atomTotal int) {
	ops = make([]program.Operation, len(order))
	for i, n := range order {
		d := defs[n]
		ops[i] = program.Operation{
			Kind:        n.Kind,
			Instance:    n.Instance,
			Def:         d,
			InStart:     inTotal,
			InLen:       len(d.Inputs),
			OutStart:    outTotal,
			OutLen:      len(d.Outputs),
			AtomStart:   atomTotal,
			AtomLen:     len(d.Atoms),
			InsScratch:  make([][]float32, len(d.Inputs)),
			OutsScratch: make([][]float32, len(d.Outputs)),
		}
		inTotal += len(d.Inputs)
		outTotal += len(d.Outputs)
		atomTotal += len(d.Atoms)
	}
	return
}

// instantiateState allocates fresh per-instance state for every scheduled
// operation. preserveAcrossSwap overwrites this with the previous
// program's state for instances that survive the swap.
func instantiateState(ops []program.Operation, reg *registry.Registry, sampleRate float64) {
	for i := range ops {
		op := &ops[i]
		if op.Def.Instantiate == nil {
			continue
		}
		st, err := reg.Instantiate(op.Kind, sampleRate)
		if err == nil {
			op.State = st
		}
	}
}

func initParams(prog *program.Program, ops []program.Operation, inSlotOf map[PortRef]int, g *Graph) {
	for _, op := range ops {
		for j, p := range op.Def.Inputs {
			slot := op.InStart + j
			ref := PortRef{Node: NodeID{Kind: op.Kind, Instance: op.Instance}, Port: p.Name}
			v, ok := g.Params[ref]
			if !ok {
				v = p.Default
			}
			prog.ParamArray[slot] = v
			prog.SmootherTarget[slot] = v
		}
	}
	_ = inSlotOf
}

func initAtoms(prog *program.Program, atomSlotOf map[PortRef]int, g *Graph, defs map[NodeID]*registry.Def) {
	for ref, slot := range atomSlotOf {
		d := defs[ref.Node]
		idx := d.AtomIndex(ref.Port)
		v := d.Atoms[idx].Default
		if av, ok := g.Atoms[ref]; ok {
			v = av
		}
		v.AddRef()
		prog.AtomArray[slot] = v
	}
}

func wireConnections(prog *program.Program, g *Graph, inSlotOf, outSlotOf map[PortRef]int) *CompileError {
	for _, c := range g.Connections {
		srcSlot, ok := outSlotOf[c.Src]
		if !ok {
			return newErr(ErrMissingEndpoint, c.Src.Node, c.Src.Port, "unresolved output port")
		}
		dstSlot, ok := inSlotOf[c.Dst]
		if !ok {
			return newErr(ErrMissingEndpoint, c.Dst.Node, c.Dst.Port, "unresolved input port")
		}
		prog.Connections = append(prog.Connections, program.Connection{SrcOutSlot: srcSlot, DstInSlot: dstSlot})
		prog.InConnected[dstSlot] = true
		prog.OutConnected[srcSlot] = true
	}
	return nil
}

func wireModulation(prog *program.Program, g *Graph, ops *[]program.Operation, inSlotOf map[PortRef]int, defs map[NodeID]*registry.Def) *CompileError {
	srcOf := make(map[int]int, len(prog.Connections))
	for _, c := range prog.Connections {
		srcOf[c.DstInSlot] = c.SrcOutSlot
	}

	// group mod entries by destination node so each operation's
	// ModStart/ModLen stay contiguous, in the order operations were
	// scheduled.
	byNode := make(map[NodeID][]PortRef)
	for ref := range g.Mods {
		byNode[ref.Node] = append(byNode[ref.Node], ref)
	}
	for n := range byNode {
		sort.Slice(byNode[n], func(i, j int) bool { return byNode[n][i].Port < byNode[n][j].Port })
	}

	for i := range *ops {
		op := &(*ops)[i]
		node := NodeID{Kind: op.Kind, Instance: op.Instance}
		op.ModStart = len(prog.ModOps)
		for _, ref := range byNode[node] {
			destSlot, ok := inSlotOf[ref]
			if !ok {
				return newErr(ErrInvalidModTarget, node, ref.Port, "modulation target not resolved")
			}
			if !prog.InConnected[destSlot] {
				// no incoming connection: spec says the amount is
				// ignored in that case.
				continue
			}
			srcSlot := srcOf[destSlot]
			amount := g.Mods[ref]
			portIdx := op.Def.InputIndex(ref.Port)
			sem := op.Def.Inputs[portIdx].ModKind
			prog.ModOps = append(prog.ModOps, program.ModOp{
				DestInSlot: destSlot,
				SrcOutSlot: srcSlot,
				Amount:     amount,
				Semantic:   sem,
			})
			prog.ModulatedInput[destSlot] = true
		}
		op.ModLen = len(prog.ModOps) - op.ModStart
	}
	_ = defs
	return nil
}

func preserveAcrossSwap(prog, prev *program.Program, inSlotOf, outSlotOf map[PortRef]int) {
	prevOps := make(map[NodeID]*program.Operation, len(prev.Operations))
	for i := range prev.Operations {
		op := &prev.Operations[i]
		prevOps[NodeID{Kind: op.Kind, Instance: op.Instance}] = op
	}

	for ref, slot := range inSlotOf {
		prevOp, ok := prevOps[ref.Node]
		if !ok {
			continue
		}
		portIdx := prevOp.Def.InputIndex(ref.Port)
		if portIdx < 0 {
			continue
		}
		prevSlot := prevOp.InStart + portIdx
		prog.ParamArray[slot] = prev.ParamArray[prevSlot]
		prog.SmootherTarget[slot] = prev.SmootherTarget[prevSlot]
	}
	for ref, slot := range outSlotOf {
		prevOp, ok := prevOps[ref.Node]
		if !ok {
			continue
		}
		portIdx := prevOp.Def.OutputIndex(ref.Port)
		if portIdx < 0 {
			continue
		}
		prevSlot := prevOp.OutStart + portIdx
		prog.PrevOutputLast[slot] = prev.PrevOutputLast[prevSlot]
	}
	// carry forward per-instance state itself (oscillator phase, filter
	// memory, envelope stage, ...) for instances that still exist.
	for i := range prog.Operations {
		op := &prog.Operations[i]
		if prevOp, ok := prevOps[NodeID{Kind: op.Kind, Instance: op.Instance}]; ok {
			op.State = prevOp.State
			op.Feedback = prevOp.Feedback
		}
	}
}
