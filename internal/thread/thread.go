// Package thread resolves email reply chains. Emails reference their parent
// through InReplyTo (the parent's Message-ID), forming a tree: forwards and
// parallel replies branch it. The builder finds the tip of the most recent
// branch and walks back to the root to produce the active conversation.
package thread

import (
	"sort"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

// Node is one email in the reply tree.
type Node struct {
	Key       string // Message-ID, or the email ID when there is none
	ParentKey string // empty for roots and for parents not on file
	Index     int    // position in the input slice
	Email     *hub.Email
}

// Result contains the resolved active chain and tree metadata.
type Result struct {
	Chain       []*hub.Email // root first
	TotalNodes  int
	BranchCount int
}

type tree struct {
	nodes    map[string]*Node
	children map[string][]string
	byID     map[string]*Node
}

func buildTree(emails []*hub.Email) *tree {
	t := &tree{
		nodes:    make(map[string]*Node, len(emails)),
		children: make(map[string][]string),
		byID:     make(map[string]*Node, len(emails)),
	}
	for i, e := range emails {
		if e == nil {
			continue
		}
		key := e.MessageID
		if key == "" {
			key = "id:" + e.ID
		}
		node := &Node{Key: key, ParentKey: e.InReplyTo, Index: i, Email: e}
		t.nodes[key] = node
		t.byID[e.ID] = node
	}
	// Parents that were never imported do not count as edges.
	for _, node := range t.nodes {
		if node.ParentKey == "" {
			continue
		}
		if _, ok := t.nodes[node.ParentKey]; !ok || node.ParentKey == node.Key {
			node.ParentKey = ""
			continue
		}
		t.children[node.ParentKey] = append(t.children[node.ParentKey], node.Key)
	}
	return t
}

// walk follows parent links from start to the root, guarding against cycles,
// and returns the emails root first.
func (t *tree) walk(start *Node) []*hub.Email {
	var chain []*hub.Email
	visited := make(map[string]bool)
	for current := start; current != nil; {
		if visited[current.Key] {
			break
		}
		visited[current.Key] = true
		chain = append(chain, current.Email)
		if current.ParentKey == "" {
			break
		}
		current = t.nodes[current.ParentKey]
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Build resolves the most recent reply chain among emails. Tips (emails with
// no replies on file) are ordered by ReceivedAt, newest first, with the later
// input position breaking ties.
func Build(emails []*hub.Email) *Result {
	t := buildTree(emails)
	if len(t.nodes) == 0 {
		return &Result{}
	}

	var tips []*Node
	for key, node := range t.nodes {
		if _, hasChildren := t.children[key]; !hasChildren {
			tips = append(tips, node)
		}
	}
	if len(tips) == 0 {
		return &Result{TotalNodes: len(t.nodes)}
	}

	sort.Slice(tips, func(i, j int) bool {
		ti, tj := tips[i].Email.ReceivedAt, tips[j].Email.ReceivedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return tips[i].Index > tips[j].Index
	})

	return &Result{
		Chain:       t.walk(tips[0]),
		TotalNodes:  len(t.nodes),
		BranchCount: len(tips),
	}
}

// Chain returns the reply chain ending at the email with the given ID, root
// first. It returns nil when the email is not among emails.
func Chain(emails []*hub.Email, emailID string) []*hub.Email {
	t := buildTree(emails)
	start, ok := t.byID[emailID]
	if !ok {
		return nil
	}
	return t.walk(start)
}

// InheritedProject returns the project of the nearest linked ancestor in a
// root-first chain, ignoring the last element (the email itself).
func InheritedProject(chain []*hub.Email) string {
	for i := len(chain) - 2; i >= 0; i-- {
		if chain[i].ProjectID != "" {
			return chain[i].ProjectID
		}
	}
	return ""
}
