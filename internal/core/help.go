package core

import (
	"strings"
)

// helpText renders /help output for a command path. An empty path lists the
// top-level commands; a container path lists its subcommands; a leaf shows
// usage, aliases and any nested subcommands.
func (m *CommandManager) helpText(path []string) string {
	if len(path) == 0 {
		lines := []string{"📚 *Commands* (use /help <cmd> ...):"}
		for _, name := range m.root.childNames() {
			n, _ := m.root.child(name)
			suffix := ""
			if len(n.children) > 0 {
				suffix = " …"
			}
			if desc := nodeDesc(n); desc != "" {
				lines = append(lines, "- /"+name+suffix+" — "+desc)
			} else {
				lines = append(lines, "- /"+name+suffix)
			}
		}
		return strings.Join(lines, "\n")
	}

	n := m.root.find(path)
	if n == nil {
		// a single unknown token may be an alias; resolve to its route
		if len(path) == 1 {
			if leaf, ok := m.alias[path[0]]; ok && leaf != nil && leaf.cmd != nil {
				return m.helpText(splitRoute(leaf.cmd.Route))
			}
		}
		return "command not found. try /help"
	}

	if n.cmd == nil {
		// container without its own handler: list what's underneath
		lines := []string{"📚 */" + strings.Join(path, " ") + "* subcommands:"}
		for _, child := range n.childNames() {
			cn, _ := n.child(child)
			if desc := nodeDesc(cn); desc != "" {
				lines = append(lines, "- /"+path[0]+" "+child+" — "+desc)
			} else {
				lines = append(lines, "- /"+path[0]+" "+child)
			}
		}
		lines = append(lines, "Tip: /help "+strings.Join(path, " ")+" <subcommand>")
		return strings.Join(lines, "\n")
	}

	cmd := n.cmd
	lines := []string{"📌 *" + cmd.Route + "*", cmd.Description}
	if cmd.Usage != "" {
		lines = append(lines, "Usage: `"+cmd.Usage+"`")
	}
	if len(cmd.Aliases) > 0 {
		lines = append(lines, "Aliases: /"+strings.Join(cmd.Aliases, ", /"))
	}
	if len(n.children) > 0 {
		lines = append(lines, "", "Subcommands:")
		for _, child := range n.childNames() {
			cn, _ := n.child(child)
			if desc := nodeDesc(cn); desc != "" {
				lines = append(lines, "- "+child+" — "+desc)
			} else {
				lines = append(lines, "- "+child)
			}
		}
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func nodeDesc(n *cmdNode) string {
	if n != nil && n.cmd != nil {
		return n.cmd.Description
	}
	return ""
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
