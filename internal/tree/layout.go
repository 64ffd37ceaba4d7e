package tree

import (
	"reflect"
	"strings"
)

// Placement is one measure's name and display folder as derived from its
// tree position.
type Placement struct {
	Name   string
	Folder string
}

// Layout is everything the tree persists: folder paths in depth-first
// order, the global query order of non-calculated tables, each table's
// group assignment, and each table's measure placements. Two equal layouts
// mean a structure edit was a no-op.
type Layout struct {
	FolderPaths []string
	TableOrder  []string
	TableGroups map[string]string
	Measures    map[string][]Placement
}

// Equal reports whether two layouts persist identically.
func (l *Layout) Equal(other *Layout) bool {
	if l == nil || other == nil {
		return l == other
	}
	return reflect.DeepEqual(l, other)
}

// Layout derives the persisted layout from current node positions.
func (t *Tree) Layout() *Layout {
	l := &Layout{
		TableGroups: make(map[string]string),
		Measures:    make(map[string][]Placement),
	}

	var walk func(n *Node, path string)
	walk = func(n *Node, path string) {
		for _, c := range n.Children {
			switch {
			case c.Kind == KindFolder && !c.synthetic:
				childPath := c.Name
				if path != "" {
					childPath = path + "/" + c.Name
				}
				l.FolderPaths = append(l.FolderPaths, childPath)
				walk(c, childPath)
			case c.Kind == KindTable:
				l.TableGroups[c.Name] = path
				if c.Table == nil || !c.Table.Calculated() {
					l.TableOrder = append(l.TableOrder, c.Name)
				}
				l.Measures[c.Name] = collectPlacements(c)
			}
		}
	}
	walk(t.root, "")
	walk(t.other, "")
	return l
}

func collectPlacements(tableNode *Node) []Placement {
	var placements []Placement
	var walk func(n *Node, segments []string)
	walk = func(n *Node, segments []string) {
		for _, c := range n.Children {
			switch c.Kind {
			case KindMeasureFolder:
				walk(c, append(segments, c.Name))
			case KindMeasure:
				placements = append(placements, Placement{
					Name:   c.Name,
					Folder: strings.Join(segments, " / "),
				})
			}
		}
	}
	walk(tableNode, nil)
	return placements
}

// Apply writes the layout back into the parsed tables: group assignments,
// measure order, and display folders all follow tree positions. Deleted
// measures drop out because each table's measure list is rebuilt.
func (t *Tree) Apply() {
	var apply func(n *Node, path string)
	apply = func(n *Node, path string) {
		for _, c := range n.Children {
			switch {
			case c.Kind == KindFolder && !c.synthetic:
				childPath := c.Name
				if path != "" {
					childPath = path + "/" + c.Name
				}
				apply(c, childPath)
			case c.Kind == KindTable && c.Table != nil:
				c.Table.QueryGroup = path
				c.Table.Measures = c.Table.Measures[:0]
				var walk func(m *Node, segments []string)
				walk = func(m *Node, segments []string) {
					for _, mc := range m.Children {
						switch mc.Kind {
						case KindMeasureFolder:
							walk(mc, append(segments, mc.Name))
						case KindMeasure:
							if mc.Measure != nil {
								mc.Measure.DisplayFolder = strings.Join(segments, " / ")
								c.Table.Measures = append(c.Table.Measures, mc.Measure)
							}
						}
					}
				}
				walk(c, nil)
			}
		}
	}
	apply(t.root, "")
	apply(t.other, "")
}
