package aggregator

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool is one entry of the merged catalog
type Tool struct {
	// Name is the catalog name; it differs from RemoteName only when namespaced
	Name       string
	Server     string
	RemoteName string
	Definition mcp.Tool
}

// Resource is a resource or resource template advertised by a backend
type Resource struct {
	Server      string
	URI         string
	Name        string
	Description string
	Template    bool
}

// Catalog maps catalog tool names to their owning backend
type Catalog struct {
	entries map[string]Tool
}

func newCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Tool)}
}

func (c *Catalog) add(t Tool) {
	t.Definition.Name = t.Name
	c.entries[t.Name] = t
}

// Len returns the number of tools
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup finds a tool by catalog name
func (c *Catalog) Lookup(name string) (Tool, bool) {
	t, ok := c.entries[name]
	return t, ok
}

// Tools returns all tools sorted by name
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, 0, len(c.entries))
	for _, t := range c.entries {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the tool names in sorted order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
