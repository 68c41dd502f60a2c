package language

import (
	"fmt"
	"sort"
)

const defaultMimeType = "text/plain"

// Descriptor describes how to run source code of one language.
type Descriptor struct {
	ID        string   `json:"id" yaml:"-"`
	Command   []string `json:"command" yaml:"command"`
	Extension string   `json:"extension" yaml:"extension"`
	MimeType  string   `json:"mimeType" yaml:"mimeType"`
}

// Argv returns the interpreter command followed by the source file path.
func (d Descriptor) Argv(filePath string) []string {
	argv := make([]string, 0, len(d.Command)+1)
	argv = append(argv, d.Command...)
	return append(argv, filePath)
}

func (d Descriptor) validate() error {
	if len(d.Command) == 0 || d.Command[0] == "" {
		return fmt.Errorf("language %s: command is required", d.ID)
	}
	if d.Extension == "" {
		return fmt.Errorf("language %s: extension is required", d.ID)
	}
	return nil
}

// Registry is an immutable table of language descriptors keyed by id.
type Registry struct {
	languages map[string]Descriptor
}

var builtin = []Descriptor{
	{ID: "python", Command: []string{"python3"}, Extension: ".py", MimeType: "text/x-python"},
	{ID: "javascript", Command: []string{"node"}, Extension: ".js", MimeType: "application/javascript"},
	{ID: "typescript", Command: []string{"tsx"}, Extension: ".ts", MimeType: "application/typescript"},
	{ID: "ruby", Command: []string{"ruby"}, Extension: ".rb", MimeType: "text/x-ruby"},
	{ID: "bash", Command: []string{"bash"}, Extension: ".sh", MimeType: "application/x-sh"},
	{ID: "zsh", Command: []string{"zsh"}, Extension: ".zsh", MimeType: "application/x-sh"},
	{ID: "fish", Command: []string{"fish"}, Extension: ".fish", MimeType: "application/x-sh"},
	{ID: "lua", Command: []string{"lua"}, Extension: ".lua", MimeType: "text/x-lua"},
}

// Default returns the built-in language table.
func Default() *Registry {
	r, _ := New(builtin...)
	return r
}

// New builds a registry from the given descriptors. Later entries replace
// earlier ones with the same id.
func New(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{languages: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("language id is required")
		}
		if err := d.validate(); err != nil {
			return nil, err
		}
		d.Command = append([]string(nil), d.Command...)
		r.languages[d.ID] = d
	}
	return r, nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	d, ok := r.languages[id]
	return d, ok
}

// Supports reports whether id is a known language.
func (r *Registry) Supports(id string) bool {
	_, ok := r.languages[id]
	return ok
}

// Names returns the sorted language ids.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.languages))
	for id := range r.languages {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// All returns every descriptor sorted by id.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.languages))
	for _, id := range r.Names() {
		out = append(out, r.languages[id])
	}
	return out
}

// MimeTypeFor returns the MIME type of id, or text/plain when unknown.
func (r *Registry) MimeTypeFor(id string) string {
	if d, ok := r.languages[id]; ok && d.MimeType != "" {
		return d.MimeType
	}
	return defaultMimeType
}
