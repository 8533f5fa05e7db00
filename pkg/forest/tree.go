package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/mchmarny/hscore/pkg/feature"
)

const leaf = -1

// Node is a flattened tree node. Leaves have Feature == -1.
// Samples with x[Feature] <= Threshold go Left.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(v feature.Vector) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if v.At(n.Feature) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the longest root-to-leaf path length.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

func (t *Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
			return fmt.Errorf("node %d: non-finite value", i)
		}
		if n.Feature == leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		// children are always stored after their parent, which also rules out cycles
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

type builder struct {
	X     []feature.Vector
	y     []float64
	p     Params
	rng   *rand.Rand
	width int
	nodes []Node
}

type split struct {
	feature   int
	threshold float64
	score     float64
}

func (b *builder) build(samples []int, depth int) int {
	var sum float64
	for _, s := range samples {
		sum += b.y[s]
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: sum / float64(len(samples))})

	if len(samples) < b.p.MinSamplesSplit || (b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) || b.pure(samples) {
		return idx
	}

	best, ok := b.bestSplit(samples)
	if !ok {
		return idx
	}

	var left, right []int
	for _, s := range samples {
		if b.X[s].At(best.feature) <= best.threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx].Feature = best.feature
	b.nodes[idx].Threshold = best.threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

func (b *builder) pure(samples []int) bool {
	first := b.y[samples[0]]
	for _, s := range samples[1:] {
		if b.y[s] != first {
			return false
		}
	}
	return true
}

// bestSplit evaluates a random subset of the features that are non-zero in at
// least one sample of the node. Features all-zero in the node are constant and
// cannot split it. Constant candidates do not count against the budget.
func (b *builder) bestSplit(samples []int) (split, bool) {
	activeSet := make(map[int]struct{})
	for _, s := range samples {
		for _, i := range b.X[s].Indices {
			activeSet[i] = struct{}{}
		}
	}
	active := make([]int, 0, len(activeSet))
	for i := range activeSet {
		active = append(active, i)
	}
	sort.Ints(active)
	b.rng.Shuffle(len(active), func(i, j int) { active[i], active[j] = active[j], active[i] })

	budget := int(math.Ceil(b.p.MaxFeatures * float64(b.width)))
	if budget < 1 {
		budget = 1
	}

	var best split
	found := false
	tried := 0
	for _, f := range active {
		if tried >= budget {
			break
		}
		s, varied, ok := b.evaluate(samples, f)
		if varied {
			tried++
		}
		if ok && (!found || s.score > best.score) {
			best = s
			found = true
		}
	}
	return best, found
}

type point struct {
	x, y float64
}

// evaluate finds the best threshold on feature f, maximizing
// sumL^2/nL + sumR^2/nR, which minimizes the children's squared error.
func (b *builder) evaluate(samples []int, f int) (split, bool, bool) {
	pts := make([]point, len(samples))
	for k, s := range samples {
		pts[k] = point{x: b.X[s].At(f), y: b.y[s]}
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].x < pts[j].x })
	if pts[0].x == pts[len(pts)-1].x {
		return split{}, false, false
	}

	var total float64
	for _, p := range pts {
		total += p.y
	}

	n := len(pts)
	minLeaf := b.p.MinSamplesLeaf
	var best split
	found := false
	var sumL float64
	for i := 1; i < n; i++ {
		sumL += pts[i-1].y
		if pts[i-1].x == pts[i].x || i < minLeaf || n-i < minLeaf {
			continue
		}
		sumR := total - sumL
		score := sumL*sumL/float64(i) + sumR*sumR/float64(n-i)
		if !found || score > best.score {
			th := pts[i-1].x + (pts[i].x-pts[i-1].x)/2
			if th >= pts[i].x {
				th = pts[i-1].x
			}
			best = split{feature: f, threshold: th, score: score}
			found = true
		}
	}
	return best, true, found
}
