package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligible(t *testing.T) {
	for _, lang := range []string{"python", "javascript", "typescript", "ruby"} {
		assert.True(t, Eligible(lang), lang)
	}
	for _, lang := range []string{"bash", "zsh", "fish", "lua", "cobol"} {
		assert.False(t, Eligible(lang), lang)
	}
}

func TestExtract_Python(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "definition with body",
			code: "def add(a, b):\n    return a + b\nprint(add(1, 2))\n",
			want: "def add(a, b):\n    return a + b\n",
		},
		{
			name: "one-line definition",
			code: "def add(a,b): return a+b",
			want: "def add(a,b): return a+b",
		},
		{
			name: "imports and assignments",
			code: "import os\nfrom sys import path\nx = 1\nprint(x)\n",
			want: "import os\nfrom sys import path\nx = 1\n",
		},
		{
			name: "decorated function",
			code: "@cache\ndef f():\n    return 1\nf()\n",
			want: "@cache\ndef f():\n    return 1\n",
		},
		{
			name: "class body with blank line",
			code: "class A:\n    x = 1\n\n    def m(self):\n        pass\nA().m()\n",
			want: "class A:\n    x = 1\n\n    def m(self):\n        pass\n",
		},
		{
			name: "compound assignment",
			code: "counter += 1",
			want: "counter += 1",
		},
		{
			name: "expression only",
			code: "print('hi')\n",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract("python", tt.code))
		})
	}
}

func TestExtract_JavaScript(t *testing.T) {
	code := "const fs = require('fs');\nfunction add(a, b) {\n  return a + b;\n}\nconsole.log(add(1, 2));\ncount = 3\n"
	want := "const fs = require('fs');\nfunction add(a, b) {\ncount = 3\n"
	assert.Equal(t, want, Extract("javascript", code))
	assert.Equal(t, want, Extract("typescript", code))
}

func TestExtract_Ruby(t *testing.T) {
	code := "require 'json'\ndef greet(name)\n  \"hi #{name}\"\nend\nputs greet('x')\nLIMIT = 3\n@count = 1\nlocal = 2\n"
	want := "require 'json'\ndef greet(name)\n  \"hi #{name}\"\nend\nLIMIT = 3\n@count = 1\n"
	assert.Equal(t, want, Extract("ruby", code))
}

func TestExtract_RubyNestedEndQuirk(t *testing.T) {
	// The first bare "end" closes the block even when it belongs to a nested def.
	code := "class A\n  def m\n  end\n  attr_reader :x\nend\n"
	assert.Equal(t, "class A\n  def m\n  end\n", Extract("ruby", code))
}

func TestExtract_IneligibleLanguage(t *testing.T) {
	assert.Empty(t, Extract("bash", "X=1\nfunction f() { echo; }\n"))
}

func TestPrepareAndAppend(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "python")
	assert.Equal(t, filepath.Join(dir, ".session_history_python"), path)

	code, err := Prepare("python", "print(1)", path)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", code, "no history yet")

	wrote, err := Append(path, "python", "def add(a,b): return a+b")
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "def add(a,b): return a+b\n\n", string(data))

	code, err = Prepare("python", "print(add(2,3))", path)
	require.NoError(t, err)
	assert.Equal(t, "def add(a,b): return a+b\n\n\nprint(add(2,3))", code)
}

func TestAppend_SkipsBlankExtract(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "python")

	wrote, err := Append(path, "python", "print('nothing durable')")
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.NoFileExists(t, path)
}

func TestPrepare_IneligibleIgnoresHistory(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "bash")
	require.NoError(t, os.WriteFile(path, []byte("X=1\n"), 0o644))

	code, err := Prepare("bash", "echo $X", path)
	require.NoError(t, err)
	assert.Equal(t, "echo $X", code)
}

func TestPrepare_BlankHistory(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "ruby")
	require.NoError(t, os.WriteFile(path, []byte("\n\n  \n"), 0o644))

	code, err := Prepare("ruby", "puts 1", path)
	require.NoError(t, err)
	assert.Equal(t, "puts 1", code)
}
