package accounts

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Node is an account in the chart hierarchy with its aggregated total.
type Node struct {
	Account
	TotalBalance decimal.Decimal `json:"total_balance"`
	Children     []*Node         `json:"children,omitempty"`
}

// BuildForest arranges accounts into trees keyed by parent id and computes
// TotalBalance bottom-up: a leaf totals its current balance, a header the sum
// of its children. A contra leaf, whose normal balance is opposite to its
// type, contributes negatively. Accounts whose parent is not in the input
// become roots. Roots and siblings are ordered by code.
func BuildForest(list []Account) []*Node {
	nodes := make(map[int64]*Node, len(list))
	for _, acc := range list {
		nodes[acc.ID] = &Node{Account: acc}
	}
	byParent := make(map[int64][]*Node, len(list))
	var roots []*Node
	for _, acc := range list {
		node := nodes[acc.ID]
		if acc.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if _, ok := nodes[*acc.ParentID]; !ok {
			roots = append(roots, node)
			continue
		}
		byParent[*acc.ParentID] = append(byParent[*acc.ParentID], node)
	}

	visited := make(map[int64]bool, len(list))
	var walk func(n *Node) decimal.Decimal
	walk = func(n *Node) decimal.Decimal {
		visited[n.ID] = true
		children := byParent[n.ID]
		sortNodes(children)
		total := decimal.Zero
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			n.Children = append(n.Children, child)
			total = total.Add(walk(child))
		}
		if !n.IsHeader {
			total = total.Add(n.PresentedBalance())
		}
		n.TotalBalance = total
		return total
	}

	sortNodes(roots)
	for _, root := range roots {
		walk(root)
	}
	return roots
}

// PresentedBalance is the current balance signed for the account type: contra
// accounts are negated.
func (a Account) PresentedBalance() decimal.Decimal {
	if a.NormalBalance != "" && a.NormalBalance != a.Type.DefaultNormalBalance() {
		return a.CurrentBalance.Neg()
	}
	return a.CurrentBalance
}

// SumTotals adds the totals of the given roots.
func SumTotals(roots []*Node) decimal.Decimal {
	total := decimal.Zero
	for _, n := range roots {
		total = total.Add(n.TotalBalance)
	}
	return total
}

// Walk visits nodes depth first, parents before children.
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, child := range n.Children {
			visit(child, depth+1)
		}
	}
	for _, root := range roots {
		visit(root, 0)
	}
}

// Leaves returns every non-header node beneath the roots.
func Leaves(roots []*Node) []*Node {
	var out []*Node
	Walk(roots, func(n *Node, _ int) {
		if !n.IsHeader {
			out = append(out, n)
		}
	})
	return out
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Code < nodes[j].Code })
}

// ancestry returns the chain from the root down to id, or false when id is
// unknown or the parent chain loops.
func ancestry(byID map[int64]Account, id int64) ([]Account, bool) {
	var chain []Account
	seen := make(map[int64]bool)
	current, ok := byID[id]
	if !ok {
		return nil, false
	}
	for {
		if seen[current.ID] {
			return nil, false
		}
		seen[current.ID] = true
		chain = append(chain, current)
		if current.ParentID == nil {
			break
		}
		parent, ok := byID[*current.ParentID]
		if !ok {
			break
		}
		current = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, true
}

// descendants returns ids below root, breadth first.
func descendants(list []Account, root int64) []int64 {
	byParent := make(map[int64][]int64)
	for _, acc := range list {
		if acc.ParentID != nil {
			byParent[*acc.ParentID] = append(byParent[*acc.ParentID], acc.ID)
		}
	}
	var out []int64
	seen := map[int64]bool{root: true}
	queue := []int64{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range byParent[id] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}
