package core

import (
	"sort"
	"strings"
)

// cmdNode is one segment of the command route tree. Leaf nodes carry a
// command; inner nodes only group subcommands (cmd stays nil).
type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

func splitRoute(route string) []string {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil
	}
	return strings.Fields(route)
}

// add walks the route, creating intermediate nodes as needed, and installs
// the command at the final segment. Re-adding a route replaces the command.
func (n *cmdNode) add(route []string, c Command) {
	cur := n
	for _, tok := range route {
		if cur.children == nil {
			cur.children = map[string]*cmdNode{}
		}
		next, ok := cur.children[tok]
		if !ok {
			next = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = next
		}
		cur = next
	}
	cur.cmd = &c
}

func (n *cmdNode) find(path []string) *cmdNode {
	cur := n
	for _, tok := range path {
		child, ok := cur.children[tok]
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

func (n *cmdNode) child(name string) (*cmdNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

func (n *cmdNode) childNames() []string {
	out := make([]string, 0, len(n.children))
	for k := range n.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
