package homeconnect

import (
	"strings"
)

// ProgramEntry maps a display name to a vendor program key.
type ProgramEntry struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// programTable is an immutable name/key index.
type programTable struct {
	entries []ProgramEntry
	byName  map[string]string // lower-cased name -> key
	byKey   map[string]string // key -> name
}

// newProgramTable indexes entries. Later duplicates of a name are ignored.
// An entry without a name is named after the terminal segment of its key.
func newProgramTable(entries []ProgramEntry) *programTable {
	t := &programTable{
		entries: make([]ProgramEntry, 0, len(entries)),
		byName:  make(map[string]string, len(entries)),
		byKey:   make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if e.Name == "" {
			e.Name = ExtractEnum(e.Key)
		}
		lower := strings.ToLower(e.Name)
		if _, dup := t.byName[lower]; dup {
			continue
		}
		t.byName[lower] = e.Key
		t.byKey[e.Key] = e.Name
		t.entries = append(t.entries, e)
	}
	return t
}

func (t *programTable) key(name string) (string, bool) {
	k, ok := t.byName[strings.ToLower(name)]
	return k, ok
}

func (t *programTable) name(key string) (string, bool) {
	n, ok := t.byKey[key]
	return n, ok
}

// ProgramCatalog resolves program names for one device. The static table is
// fixed per appliance type; the discovered table is replaced wholesale each
// time the cloud reports the appliance's available programs.
type ProgramCatalog struct {
	namespace  string
	static     *programTable
	discovered *programTable
}

// NewProgramCatalog creates a catalog over a static table. namespace is the
// vendor prefix used to synthesise keys for unknown names
// (e.g. "LaundryCare.Dryer").
func NewProgramCatalog(namespace string, static []ProgramEntry) *ProgramCatalog {
	return &ProgramCatalog{
		namespace:  namespace,
		static:     newProgramTable(static),
		discovered: newProgramTable(nil),
	}
}

// Replace swaps the discovered table for entries.
func (c *ProgramCatalog) Replace(entries []ProgramEntry) {
	c.discovered = newProgramTable(entries)
}

// Resolve returns the vendor key for a program name. A value that already
// contains a dot is used verbatim; otherwise the static table is consulted,
// then the discovered table, and finally a key is synthesised as
// "{namespace}.Program.{name}". Resolution never fails.
func (c *ProgramCatalog) Resolve(name string) string {
	name = strings.TrimSpace(name)
	if strings.Contains(name, ".") {
		return name
	}
	if k, ok := c.static.key(name); ok {
		return k
	}
	if k, ok := c.discovered.key(name); ok {
		return k
	}
	return c.namespace + ".Program." + name
}

// NameForKey returns the display name for a vendor key, falling back to the
// key's terminal segment.
func (c *ProgramCatalog) NameForKey(key string) string {
	if n, ok := c.static.name(key); ok {
		return n
	}
	if n, ok := c.discovered.name(key); ok {
		return n
	}
	return ExtractEnum(key)
}

// Static returns the built-in entries.
func (c *ProgramCatalog) Static() []ProgramEntry {
	return copyEntries(c.static.entries)
}

// Discovered returns the entries last reported by the cloud.
func (c *ProgramCatalog) Discovered() []ProgramEntry {
	return copyEntries(c.discovered.entries)
}

func copyEntries(in []ProgramEntry) []ProgramEntry {
	out := make([]ProgramEntry, len(in))
	copy(out, in)
	return out
}
