package language

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ContainsBuiltins(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{"bash", "fish", "javascript", "lua", "python", "ruby", "typescript", "zsh"}, r.Names())

	d, ok := r.Lookup("python")
	require.True(t, ok)
	assert.Equal(t, []string{"python3"}, d.Command)
	assert.Equal(t, ".py", d.Extension)
	assert.Equal(t, "text/x-python", d.MimeType)
}

func TestDescriptor_Argv(t *testing.T) {
	d := Descriptor{ID: "x", Command: []string{"node", "--no-warnings"}, Extension: ".js"}
	argv := d.Argv("/tmp/main.js")
	assert.Equal(t, []string{"node", "--no-warnings", "/tmp/main.js"}, argv)
	assert.Equal(t, []string{"node", "--no-warnings"}, d.Command, "Argv must not alias the command slice")
}

func TestRegistry_MimeTypeFallback(t *testing.T) {
	r := Default()
	assert.Equal(t, "application/x-sh", r.MimeTypeFor("bash"))
	assert.Equal(t, "text/plain", r.MimeTypeFor("cobol"))
	assert.False(t, r.Supports("cobol"))
}

func TestNew_RejectsInvalid(t *testing.T) {
	_, err := New(Descriptor{ID: "x", Extension: ".x"})
	assert.Error(t, err)

	_, err = New(Descriptor{ID: "x", Command: []string{"x"}})
	assert.Error(t, err)

	_, err = New(Descriptor{Command: []string{"x"}, Extension: ".x"})
	assert.Error(t, err)
}

func TestParse_MergesOverrides(t *testing.T) {
	r, err := Parse([]byte(`
languages:
  python:
    command: [python3, -u]
    extension: .py
    mimeType: text/x-python
  java:
    command: [java]
    extension: .java
`))
	require.NoError(t, err)

	py, ok := r.Lookup("python")
	require.True(t, ok)
	assert.Equal(t, []string{"python3", "-u"}, py.Command)

	java, ok := r.Lookup("java")
	require.True(t, ok)
	assert.Equal(t, "java", java.ID)
	assert.Equal(t, "text/plain", java.MimeType)
	assert.True(t, r.Supports("ruby"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("languages:\n  perl:\n    command: [perl]\n    extension: .pl\n"), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, r.Supports("perl"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("languages:\n  perl:\n    extension: .pl\n"), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}
