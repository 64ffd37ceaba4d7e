package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pbip-tools/tentacles/internal/tmdl"
)

var (
	ErrEmptyName     = errors.New("name is empty")
	ErrNameTaken     = errors.New("name already in use")
	ErrReservedName  = errors.New(`"Other Queries" is reserved`)
	ErrImmutableNode = errors.New("node cannot be renamed or deleted")
	ErrInvalidTarget = errors.New("target cannot hold this node")
)

// DefaultFolderName seeds unique-name generation for new folders.
const DefaultFolderName = "New Folder"

func uniqueName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s %d", base, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

func siblingFolderTaken(parent *Node, name string, skip *Node) bool {
	for _, c := range parent.Children {
		if c == skip {
			continue
		}
		if (c.Kind == KindFolder || c.Kind == KindMeasureFolder) && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func validateFolderName(parent *Node, name string, skip *Node) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if parent.Kind == KindRoot && strings.EqualFold(strings.TrimSpace(name), OtherQueriesName) {
		return ErrReservedName
	}
	if siblingFolderTaken(parent, name, skip) {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	return nil
}

// NewFolder creates a query-group folder under the root or another folder.
// An empty name picks the first free "New Folder" variant.
func (t *Tree) NewFolder(parent *Node, name string) (*Node, error) {
	if parent == nil {
		parent = t.root
	}
	if parent.synthetic || (parent.Kind != KindRoot && parent.Kind != KindFolder) {
		return nil, ErrInvalidTarget
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = uniqueName(DefaultFolderName, func(n string) bool {
			return siblingFolderTaken(parent, n, nil) ||
				(parent.Kind == KindRoot && strings.EqualFold(n, OtherQueriesName))
		})
	}
	if err := validateFolderName(parent, name, nil); err != nil {
		return nil, err
	}
	node := &Node{Kind: KindFolder, Name: name}
	idx := len(parent.Children)
	if parent == t.root && len(parent.Children) > 0 {
		idx--
	}
	attachAt(parent, node, idx)
	return node, nil
}

// CreateFolderPath returns the folder at the normalized path, creating
// any missing segments. Segment matching is case-insensitive.
func (t *Tree) CreateFolderPath(path string) (*Node, error) {
	path = tmdl.NormalizeGroupPath(path)
	if path == "" {
		return nil, ErrEmptyName
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
			created, err := t.NewFolder(cur, segment)
			if err != nil {
				return nil, err
			}
			next = created
		}
		cur = next
	}
	return cur, nil
}

// RenameFolder renames a query-group folder. Descendant group paths follow
// automatically because paths derive from node positions. A case-change of
// the same folder is allowed; any other case-insensitive sibling collision
// is rejected without mutating the tree.
func (t *Tree) RenameFolder(n *Node, name string) error {
	if n == nil || n.Kind != KindFolder || n.synthetic {
		return ErrImmutableNode
	}
	name = strings.TrimSpace(name)
	if err := validateFolderName(n.Parent, name, n); err != nil {
		return err
	}
	n.Name = name
	return nil
}

// DeleteFolder removes a folder and its subfolders. Every descendant table
// relocates to Other Queries in visit order.
func (t *Tree) DeleteFolder(n *Node) error {
	if n == nil || n.Kind != KindFolder || n.synthetic {
		return ErrImmutableNode
	}
	var tables []*Node
	var collect func(*Node)
	collect = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Kind == KindTable {
				tables = append(tables, c)
				continue
			}
			collect(c)
		}
	}
	collect(n)
	detach(n)
	for _, tbl := range tables {
		detach(tbl)
		attach(t.other, tbl)
	}
	return nil
}

// MoveTable reattaches a table node. A folder target appends the table; a
// table target inserts it as the next sibling; the root means Other
// Queries.
func (t *Tree) MoveTable(n, target *Node) error {
	if n == nil || n.Kind != KindTable {
		return ErrInvalidTarget
	}
	switch {
	case target == nil || target.Kind == KindRoot:
		target = t.other
	case target.Kind == KindTable:
		parent := target.Parent
		idx := childIndex(parent, target)
		detach(n)
		attachAt(parent, n, idx+1)
		return nil
	case target.Kind == KindFolder:
	default:
		return ErrInvalidTarget
	}
	detach(n)
	attach(target, n)
	return nil
}

func measureNameTaken(tableNode *Node, name string, skip *Node) bool {
	taken := false
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Kind == KindMeasure && c != skip && strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
				taken = true
				return
			}
			if c.Kind == KindMeasureFolder {
				walk(c)
			}
		}
	}
	walk(tableNode)
	return taken
}

// NewMeasure creates a measure under a table or one of its measure
// folders. Measure names are unique per table, case-insensitively.
func (t *Tree) NewMeasure(parent *Node, name string) (*Node, error) {
	if parent == nil || (parent.Kind != KindTable && parent.Kind != KindMeasureFolder) {
		return nil, ErrInvalidTarget
	}
	tableNode := parent.TableNode()
	if tableNode == nil {
		return nil, ErrInvalidTarget
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = uniqueName("New Measure", func(n string) bool {
			return measureNameTaken(tableNode, n, nil)
		})
	}
	if measureNameTaken(tableNode, name, nil) {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	node := &Node{Kind: KindMeasure, Name: name, Measure: tmdl.NewMeasure(name)}
	attach(parent, node)
	return node, nil
}

// RenameMeasure renames a measure, rejecting per-table collisions.
func (t *Tree) RenameMeasure(n *Node, name string) error {
	if n == nil || n.Kind != KindMeasure || n.Measure == nil {
		return ErrImmutableNode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if measureNameTaken(n.TableNode(), name, n) {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	n.Name = name
	n.Measure.Name = name
	n.Measure.Quote = tmdl.QuoteAuto
	return nil
}

// DeleteMeasure detaches a measure node. The backing file entry disappears
// on the next save, when table measures are rebuilt from the tree.
func (t *Tree) DeleteMeasure(n *Node) error {
	if n == nil || n.Kind != KindMeasure {
		return ErrImmutableNode
	}
	detach(n)
	return nil
}

// MoveMeasure reattaches a measure under a table or measure folder of the
// same table. Cross-table moves are rejected.
func (t *Tree) MoveMeasure(n, target *Node) error {
	if n == nil || n.Kind != KindMeasure {
		return ErrInvalidTarget
	}
	if target == nil || (target.Kind != KindTable && target.Kind != KindMeasureFolder) {
		return ErrInvalidTarget
	}
	if target.TableNode() != n.TableNode() {
		return ErrInvalidTarget
	}
	detach(n)
	attach(target, n)
	return nil
}

// NewMeasureFolder creates a display folder under a table or another
// measure folder.
func (t *Tree) NewMeasureFolder(parent *Node, name string) (*Node, error) {
	if parent == nil || (parent.Kind != KindTable && parent.Kind != KindMeasureFolder) {
		return nil, ErrInvalidTarget
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = uniqueName(DefaultFolderName, func(n string) bool {
			return siblingFolderTaken(parent, n, nil)
		})
	}
	if siblingFolderTaken(parent, name, nil) {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	node := &Node{Kind: KindMeasureFolder, Name: name}
	idx := len(parent.Children)
	for i, c := range parent.Children {
		if c.Kind == KindMeasure {
			idx = i
			break
		}
	}
	attachAt(parent, node, idx)
	return node, nil
}

// RenameMeasureFolder renames a display folder, rejecting sibling
// collisions.
func (t *Tree) RenameMeasureFolder(n *Node, name string) error {
	if n == nil || n.Kind != KindMeasureFolder {
		return ErrImmutableNode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if siblingFolderTaken(n.Parent, name, n) {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	n.Name = name
	return nil
}

// DeleteMeasureFolder removes a display folder, reattaching its contents
// to the folder's parent in place.
func (t *Tree) DeleteMeasureFolder(n *Node) error {
	if n == nil || n.Kind != KindMeasureFolder {
		return ErrImmutableNode
	}
	parent := n.Parent
	idx := childIndex(parent, n)
	children := append([]*Node(nil), n.Children...)
	detach(n)
	for i, c := range children {
		detach(c)
		attachAt(parent, c, idx+i)
	}
	return nil
}

// SortAlphabetical orders every level case-insensitively, folders before
// tables and measures, with Other Queries pinned last at the top level.
func (t *Tree) SortAlphabetical() {
	var sortLevel func(*Node)
	sortLevel = func(n *Node) {
		sort.SliceStable(n.Children, func(i, j int) bool {
			a, b := n.Children[i], n.Children[j]
			if a.synthetic != b.synthetic {
				return b.synthetic
			}
			if ra, rb := kindRank(a.Kind), kindRank(b.Kind); ra != rb {
				return ra < rb
			}
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		})
		for _, c := range n.Children {
			sortLevel(c)
		}
	}
	sortLevel(t.root)
}

func kindRank(k Kind) int {
	switch k {
	case KindFolder, KindMeasureFolder:
		return 0
	case KindColumn:
		return 1
	case KindTable:
		return 2
	case KindMeasure:
		return 3
	default:
		return 4
	}
}

// Normalize repairs illegal placements after arbitrary moves: top-level
// tables drop into Other Queries, tables inside tables become siblings,
// and stray measure content reattaches to its nearest enclosing table.
func (t *Tree) Normalize() {
	for changed := true; changed; {
		changed = false
		var offenders []*Node
		t.Walk(func(n *Node) bool {
			if n == t.other {
				return true
			}
			parentKind := KindRoot
			if n.Parent != nil {
				parentKind = n.Parent.Kind
				if n.Parent.synthetic && n.Kind == KindFolder {
					offenders = append(offenders, n)
					return true
				}
			}
			if !IsValidChild(parentKind, n.Kind) {
				offenders = append(offenders, n)
			}
			return true
		})
		for _, n := range offenders {
			changed = true
			switch n.Kind {
			case KindTable:
				if n.Parent != nil && n.Parent.Kind == KindTable {
					_ = t.MoveTable(n, n.Parent)
					continue
				}
				detach(n)
				attach(t.other, n)
			case KindMeasure, KindMeasureFolder:
				if tbl := n.TableNode(); tbl != nil && tbl != n.Parent {
					detach(n)
					attach(tbl, n)
				} else {
					detach(n)
				}
			case KindFolder:
				detach(n)
				var tables []*Node
				var collect func(*Node)
				collect = func(cur *Node) {
					for _, c := range cur.Children {
						if c.Kind == KindTable {
							tables = append(tables, c)
							continue
						}
						collect(c)
					}
				}
				collect(n)
				for _, tbl := range tables {
					detach(tbl)
					attach(t.other, tbl)
				}
			default:
				detach(n)
			}
		}
	}

	if idx := childIndex(t.root, t.other); idx >= 0 && idx != len(t.root.Children)-1 {
		detach(t.other)
		attach(t.root, t.other)
	}
}
