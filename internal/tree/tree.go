// Package tree holds the in-memory project tree: query-group folders,
// tables, columns, and measure folders reconciled against the parsed
// metadata. All structure edits go through this package so the persisted
// layout can be recomputed from node positions alone.
package tree

import (
	"sort"
	"strings"

	"github.com/pbip-tools/tentacles/internal/tmdl"
)

// OtherQueriesName is the display name of the synthetic catch-all folder.
// It is reserved case-insensitively at the top level and never persisted
// as a query group.
const OtherQueriesName = "Other Queries"

// Kind is the closed set of node kinds.
type Kind int

const (
	KindRoot Kind = iota
	KindFolder
	KindTable
	KindColumn
	KindMeasureFolder
	KindMeasure
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindFolder:
		return "folder"
	case KindTable:
		return "table"
	case KindColumn:
		return "column"
	case KindMeasureFolder:
		return "measure-folder"
	case KindMeasure:
		return "measure"
	default:
		return "unknown"
	}
}

// IsValidChild reports whether a node of kind child may sit directly under
// a node of kind parent. Tables never nest; measure content stays scoped
// to one table.
func IsValidChild(parent, child Kind) bool {
	switch parent {
	case KindRoot:
		return child == KindFolder
	case KindFolder:
		return child == KindFolder || child == KindTable
	case KindTable:
		return child == KindColumn || child == KindMeasure || child == KindMeasureFolder
	case KindMeasureFolder:
		return child == KindMeasure || child == KindMeasureFolder
	default:
		return false
	}
}

// Node is one entry in the project tree.
type Node struct {
	Kind     Kind
	Name     string
	Parent   *Node
	Children []*Node

	Table   *tmdl.Table   // set on table nodes
	Measure *tmdl.Measure // set on measure nodes

	synthetic bool // the Other Queries folder
}

// Synthetic reports whether the node is the Other Queries folder.
func (n *Node) Synthetic() bool { return n.synthetic }

// FolderPath returns the slash path of a folder node. The Other Queries
// folder and the root have no path.
func (n *Node) FolderPath() string {
	if n == nil || n.Kind != KindFolder || n.synthetic {
		return ""
	}
	var parts []string
	for cur := n; cur != nil && cur.Kind == KindFolder && !cur.synthetic; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// TableNode returns the enclosing table node of a measure or measure
// folder, or nil.
func (n *Node) TableNode() *Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind == KindTable {
			return cur
		}
	}
	return nil
}

func attach(parent, child *Node) {
	child.Parent = parent
	parent.Children = append(parent.Children, child)
}

func attachAt(parent, child *Node, idx int) {
	if idx < 0 || idx > len(parent.Children) {
		idx = len(parent.Children)
	}
	child.Parent = parent
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[idx+1:], parent.Children[idx:])
	parent.Children[idx] = child
}

func detach(n *Node) {
	p := n.Parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

func childIndex(parent, child *Node) int {
	for i, c := range parent.Children {
		if c == child {
			return i
		}
	}
	return -1
}

// Tree is the reconciled project tree.
type Tree struct {
	root  *Node
	other *Node
}

// Root returns the invisible root node.
func (t *Tree) Root() *Node { return t.root }

// OtherQueries returns the synthetic catch-all folder. It always exists
// and always sits last under the root.
func (t *Tree) OtherQueries() *Node { return t.other }

// Build reconciles parsed tables, declared query groups, and the global
// query order into a tree. Declared folders come first in group order with
// implicit parent prefixes materialized, tables sort by order position then
// name, and the Other Queries folder closes the top level.
func Build(tables []*tmdl.Table, groups map[string]int, order []string) *Tree {
	t := &Tree{
		root:  &Node{Kind: KindRoot},
		other: &Node{Kind: KindFolder, Name: OtherQueriesName, synthetic: true},
	}

	type groupEntry struct {
		path  string
		order int
	}
	entries := make([]groupEntry, 0, len(groups))
	for path, ord := range groups {
		entries = append(entries, groupEntry{path, ord})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].path < entries[j].path
	})
	for _, e := range entries {
		t.ensureFolder(e.path)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	sorted := append([]*tmdl.Table(nil), tables...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, iok := pos[sorted[i].Name]
		pj, jok := pos[sorted[j].Name]
		if iok != jok {
			return iok
		}
		if iok && pi != pj {
			return pi < pj
		}
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	for _, tbl := range sorted {
		parent := t.other
		if tbl.QueryGroup != "" {
			parent = t.ensureFolder(tbl.QueryGroup)
		}
		node := &Node{Kind: KindTable, Name: tbl.Name, Table: tbl}
		attach(parent, node)
		populateTable(node, tbl)
	}

	attach(t.root, t.other)
	return t
}

// ensureFolder walks a slash path from the root, creating missing folder
// nodes. New folders append after their existing siblings.
func (t *Tree) ensureFolder(path string) *Node {
	cur := t.root
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		var next *Node
		for _, c := range cur.Children {
			if c.Kind == KindFolder && !c.synthetic && strings.EqualFold(c.Name, segment) {
				next = c
				break
			}
		}
		if next == nil {
			next = &Node{Kind: KindFolder, Name: segment}
			attach(cur, next)
		}
		cur = next
	}
	return cur
}

// populateTable adds column nodes (sorted case-insensitively), measure
// folders from display folders, and measure nodes in file order.
func populateTable(node *Node, tbl *tmdl.Table) {
	columns := append([]string(nil), tbl.Columns...)
	sort.SliceStable(columns, func(i, j int) bool {
		return strings.ToLower(columns[i]) < strings.ToLower(columns[j])
	})
	for _, col := range columns {
		attach(node, &Node{Kind: KindColumn, Name: col})
	}

	for _, m := range tbl.Measures {
		parent := node
		if path := tmdl.NormalizeGroupPath(m.DisplayFolder); path != "" {
			parent = ensureMeasureFolder(node, path)
		}
		attach(parent, &Node{Kind: KindMeasure, Name: m.Name, Measure: m})
	}
}

// ensureMeasureFolder walks a slash path under a table or measure folder,
// creating missing folder nodes before any sibling measures.
func ensureMeasureFolder(tableNode *Node, path string) *Node {
	cur := tableNode
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		var next *Node
		for _, c := range cur.Children {
			if c.Kind == KindMeasureFolder && strings.EqualFold(c.Name, segment) {
				next = c
				break
			}
		}
		if next == nil {
			next = &Node{Kind: KindMeasureFolder, Name: segment}
			idx := len(cur.Children)
			for i, c := range cur.Children {
				if c.Kind == KindMeasure {
					idx = i
					break
				}
			}
			attachAt(cur, next, idx)
		}
		cur = next
	}
	return cur
}

// FindTable returns the table node with the given name, or nil.
func (t *Tree) FindTable(name string) *Node {
	var found *Node
	t.Walk(func(n *Node) bool {
		if n.Kind == KindTable && strings.EqualFold(n.Name, name) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindFolder returns the folder node at the given slash path, or nil. The
// empty path and the Other Queries name both return the catch-all folder.
func (t *Tree) FindFolder(path string) *Node {
	path = tmdl.NormalizeGroupPath(path)
	if path == "" || strings.EqualFold(path, OtherQueriesName) {
		return t.other
	}
	cur := t.root
	for _, segment := range strings.Split(path, "/") {
		var next *Node
		for _, c := range cur.Children {
			if c.Kind == KindFolder && !c.synthetic && strings.EqualFold(c.Name, segment) {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Walk visits nodes depth-first, children in order. The visitor returns
// false to stop the walk.
func (t *Tree) Walk(visit func(*Node) bool) {
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		if n != t.root && !visit(n) {
			return false
		}
		for _, c := range n.Children {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(t.root)
}
