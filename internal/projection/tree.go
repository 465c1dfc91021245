// Package projection derives presentation views from a set of notes: the
// parent/child forest, calendar events, reminders and search results.
// Every builder is pure and never mutates its input.
package projection

import (
	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/models"
)

// BuildTree arranges notes into a forest. A note whose parent is absent,
// unresolvable or itself is a root. Notes caught in a parent cycle are
// promoted to roots in input order once the acyclic part is placed.
// Roots and children keep input order.
func BuildTree(notes []models.Note) []models.Note {
	byID := make(map[uuid.UUID]int, len(notes))
	for i, n := range notes {
		if _, dup := byID[n.ID]; !dup {
			byID[n.ID] = i
		}
	}

	children := make(map[uuid.UUID][]int)
	var roots []int
	for i, n := range notes {
		if n.ParentID == nil || *n.ParentID == n.ID {
			roots = append(roots, i)
			continue
		}
		if _, ok := byID[*n.ParentID]; !ok {
			roots = append(roots, i)
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], i)
	}

	placed := make([]bool, len(notes))
	var build func(i int) models.Note
	build = func(i int) models.Note {
		placed[i] = true
		node := notes[i]
		node.Children = nil
		for _, c := range children[node.ID] {
			if placed[c] {
				continue
			}
			node.Children = append(node.Children, build(c))
		}
		return node
	}

	forest := make([]models.Note, 0, len(roots))
	for _, i := range roots {
		forest = append(forest, build(i))
	}
	for i := range notes {
		if !placed[i] {
			forest = append(forest, build(i))
		}
	}
	return forest
}

// Flatten walks a forest depth-first and returns each note with its depth.
func Flatten(forest []models.Note) []FlatNode {
	var out []FlatNode
	var walk func(nodes []models.Note, depth int)
	walk = func(nodes []models.Note, depth int) {
		for _, n := range nodes {
			kids := n.Children
			n.Children = nil
			out = append(out, FlatNode{Note: n, Depth: depth})
			walk(kids, depth+1)
		}
	}
	walk(forest, 0)
	return out
}

// FlatNode is one row of a flattened forest.
type FlatNode struct {
	Note  models.Note `json:"note"`
	Depth int         `json:"depth"`
}
