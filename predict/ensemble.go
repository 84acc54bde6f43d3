package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ensemble is a gradient-boosted regression tree ensemble.
//
// Artifacts use the XGBoost JSON dump node layout
// (nodeid/split/split_condition/yes/no/missing/children, or nodeid/leaf)
// wrapped in an envelope carrying the training feature names and base score.
// A prediction is base_score plus the sum of one leaf per tree.
type Ensemble struct {
	name      string
	features  []string
	baseScore float64
	trees     []compiledTree
}

type artifact struct {
	Name         string     `json:"name"`
	Objective    string     `json:"objective"`
	BaseScore    float64    `json:"base_score"`
	FeatureNames []string   `json:"feature_names"`
	Trees        []treeNode `json:"trees"`
}

type treeNode struct {
	NodeID         int        `json:"nodeid"`
	Split          string     `json:"split,omitempty"`
	SplitCondition float64    `json:"split_condition,omitempty"`
	Yes            int        `json:"yes,omitempty"`
	No             int        `json:"no,omitempty"`
	Missing        int        `json:"missing,omitempty"`
	Leaf           *float64   `json:"leaf,omitempty"`
	Children       []treeNode `json:"children,omitempty"`
}

// compiledTree stores nodes in a slice indexed by node id.
type compiledTree struct {
	nodes []flatNode
}

type flatNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	yes       int
	no        int
	missing   int
}

// ParseEnsemble decodes and validates an ensemble artifact.
func ParseEnsemble(data []byte) (*Ensemble, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("model artifact has no feature_names")
	}
	if a.Objective != "" && a.Objective != "reg:squarederror" {
		return nil, fmt.Errorf("unsupported objective %q", a.Objective)
	}

	index := make(map[string]int, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate feature name %q", name)
		}
		index[name] = i
	}

	e := &Ensemble{
		name:      a.Name,
		features:  append([]string(nil), a.FeatureNames...),
		baseScore: a.BaseScore,
		trees:     make([]compiledTree, 0, len(a.Trees)),
	}
	for i, root := range a.Trees {
		tree, err := compileTree(root, index)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		e.trees = append(e.trees, tree)
	}
	return e, nil
}

func compileTree(root treeNode, index map[string]int) (compiledTree, error) {
	var flat []treeNode
	var walk func(n treeNode)
	walk = func(n treeNode) {
		flat = append(flat, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)

	size := 0
	for _, n := range flat {
		if n.NodeID < 0 {
			return compiledTree{}, fmt.Errorf("negative node id %d", n.NodeID)
		}
		if n.NodeID+1 > size {
			size = n.NodeID + 1
		}
	}

	nodes := make([]flatNode, size)
	seen := make([]bool, size)
	for _, n := range flat {
		if seen[n.NodeID] {
			return compiledTree{}, fmt.Errorf("duplicate node id %d", n.NodeID)
		}
		seen[n.NodeID] = true

		if n.Leaf != nil {
			nodes[n.NodeID] = flatNode{leaf: true, value: *n.Leaf}
			continue
		}
		feature, err := resolveFeature(n.Split, index)
		if err != nil {
			return compiledTree{}, fmt.Errorf("node %d: %w", n.NodeID, err)
		}
		nodes[n.NodeID] = flatNode{
			feature:   feature,
			threshold: n.SplitCondition,
			yes:       n.Yes,
			no:        n.No,
			missing:   n.Missing,
		}
	}

	for id, n := range nodes {
		if !seen[id] {
			continue
		}
		if n.leaf {
			continue
		}
		for _, child := range []int{n.yes, n.no, n.missing} {
			if child <= id || child >= size || !seen[child] {
				return compiledTree{}, fmt.Errorf("node %d: dangling child %d", id, child)
			}
		}
	}
	if !seen[0] {
		return compiledTree{}, fmt.Errorf("missing root node 0")
	}
	return compiledTree{nodes: nodes}, nil
}

// resolveFeature maps a split name to a feature index. Positional names
// ("f3") are accepted for artifacts trained without column names.
func resolveFeature(split string, index map[string]int) (int, error) {
	if i, ok := index[split]; ok {
		return i, nil
	}
	if strings.HasPrefix(split, "f") {
		if i, err := strconv.Atoi(split[1:]); err == nil && i >= 0 && i < len(index) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("split on unknown feature %q", split)
}

// Name returns the artifact name.
func (e *Ensemble) Name() string { return e.name }

// FeatureNames returns the training columns in input order.
func (e *Ensemble) FeatureNames() []string {
	return append([]string(nil), e.features...)
}

// Predict evaluates the ensemble on values aligned with FeatureNames.
// NaN values follow each split's missing branch.
func (e *Ensemble) Predict(values []float64) float64 {
	sum := e.baseScore
	for _, t := range e.trees {
		sum += t.eval(values)
	}
	return sum
}

func (t compiledTree) eval(values []float64) float64 {
	id := 0
	for {
		n := t.nodes[id]
		if n.leaf {
			return n.value
		}
		x := math.NaN()
		if n.feature < len(values) {
			x = values[n.feature]
		}
		switch {
		case math.IsNaN(x):
			id = n.missing
		case x < n.threshold:
			id = n.yes
		default:
			id = n.no
		}
	}
}
