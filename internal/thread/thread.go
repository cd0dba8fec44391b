// Package thread builds nested reply forests from flat comment lists.
package thread

import "reviewport/api/internal/model"

// Node is a comment with its ordered replies.
type Node struct {
	model.Comment
	Replies []*Node `json:"replies"`
}

// Build converts comments, ordered by creation time ascending, into a forest.
// A comment whose parent_id resolves within the input becomes a reply of that
// parent; everything else is a root, including replies whose parent fell
// outside the filtered set (e.g. a file-scoped fetch that excludes the parent).
// Sibling order at every level equals the input order. Input is assumed
// acyclic; the store enforces that.
func Build(comments []model.Comment) []*Node {
	byID := make(map[string]*Node, len(comments))
	nodes := make([]*Node, 0, len(comments))
	for _, c := range comments {
		node := &Node{Comment: c, Replies: []*Node{}}
		nodes = append(nodes, node)
		if c.ID != "" {
			byID[c.ID] = node
		}
	}

	roots := make([]*Node, 0, len(nodes))
	for _, node := range nodes {
		if node.ParentID != nil {
			if parent, ok := byID[*node.ParentID]; ok && parent != node {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

// Flatten walks the forest depth-first, parents before replies. Used by unread
// accounting and tests.
func Flatten(forest []*Node) []model.Comment {
	out := make([]model.Comment, 0, len(forest))
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.Comment)
			walk(n.Replies)
		}
	}
	walk(forest)
	return out
}
