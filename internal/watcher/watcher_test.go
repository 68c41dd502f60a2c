package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestCountFiles_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	count := CountFiles(dir)
	if count != 0 {
		t.Errorf("expected 0 files, got %d", count)
	}
}

func TestCountFiles_WithFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(dir, "file"+string(rune('a'+i))+".txt"), []byte("test"), 0644)
	}

	count := CountFiles(dir)
	if count != 5 {
		t.Errorf("expected 5 files, got %d", count)
	}
}

func TestCountFiles_SessionLayout(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "data"), 0755)
	os.MkdirAll(filepath.Join(dir, "output"), 0755)
	os.WriteFile(filepath.Join(dir, "data", "main.py"), []byte("print(1)"), 0644)
	os.WriteFile(filepath.Join(dir, "output", "plot.png"), []byte("png"), 0644)
	os.WriteFile(filepath.Join(dir, ".session_history_python"), []byte("x = 1\n"), 0644)

	count := CountFiles(dir)
	if count != 2 {
		t.Errorf("expected 2 files (history excluded), got %d", count)
	}
}

func TestCountFiles_ExcludesDependencyDirs(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.js"), []byte("test"), 0644)

	for _, d := range []string{"node_modules", "__pycache__", ".git"} {
		os.MkdirAll(filepath.Join(dir, d), 0755)
		os.WriteFile(filepath.Join(dir, d, "x"), []byte("test"), 0644)
	}

	count := CountFiles(dir)
	if count != 1 {
		t.Errorf("expected 1 file, got %d", count)
	}
}

func TestCountFiles_ExcludesHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.rb"), []byte("test"), 0644)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET"), 0644)

	count := CountFiles(dir)
	if count != 1 {
		t.Errorf("expected 1 file (hidden files excluded), got %d", count)
	}
}

func TestBuildFileTree_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	tree := BuildFileTree(dir, DefaultTreeDepth)
	if len(tree) != 0 {
		t.Errorf("expected empty tree, got %d nodes", len(tree))
	}
}

func TestBuildFileTree_WithFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "helper.go"), []byte("package sub"), 0644)

	tree := BuildFileTree(dir, DefaultTreeDepth)
	if len(tree) != 2 { // "sub" dir + "main.go" file
		t.Fatalf("expected 2 nodes, got %d", len(tree))
	}

	// Dirs come first.
	if !tree[0].IsDir || tree[0].Name != "sub" {
		t.Errorf("expected first node to be 'sub' dir, got %s (isDir=%v)", tree[0].Name, tree[0].IsDir)
	}
	if tree[0].Children[0].Path != "sub/helper.go" {
		t.Errorf("expected slash-separated relative path, got %s", tree[0].Children[0].Path)
	}

	if tree[1].IsDir || tree[1].Name != "main.go" || tree[1].Size != int64(len("package main")) {
		t.Errorf("unexpected file node %+v", tree[1])
	}
}

func TestBuildFileTree_HidesHistory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("test"), 0644)
	os.WriteFile(filepath.Join(dir, ".session_history_ruby"), []byte("x = 1\n"), 0644)
	os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755)

	tree := BuildFileTree(dir, DefaultTreeDepth)
	if len(tree) != 1 { // Only main.go
		t.Errorf("expected 1 node, got %d", len(tree))
	}
}

func TestBuildFileTree_MaxDepth(t *testing.T) {
	dir := t.TempDir()
	// Create 4 levels deep.
	deep := filepath.Join(dir, "a", "b", "c", "d")
	os.MkdirAll(deep, 0755)
	os.WriteFile(filepath.Join(deep, "deep.txt"), []byte("deep"), 0644)

	tree := BuildFileTree(dir, 3)
	if len(tree) != 1 {
		t.Fatalf("expected 1 top-level node, got %d", len(tree))
	}

	node := tree[0] // "a"
	if node.Name != "a" {
		t.Fatalf("expected 'a', got %s", node.Name)
	}
	if len(node.Children) != 1 || node.Children[0].Name != "b" {
		t.Fatalf("expected 'b' child")
	}
	b := node.Children[0]
	if len(b.Children) != 1 || b.Children[0].Name != "c" {
		t.Fatalf("expected 'c' child")
	}
	c := b.Children[0]
	if len(c.Children) != 0 {
		t.Errorf("expected no children at depth 3, got %d", len(c.Children))
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".git", true},
		{".session_history_python", true},
		{"main.go", false},
		{"", false},
	}

	for _, tt := range tests {
		got := isHidden(tt.name)
		if got != tt.want {
			t.Errorf("isHidden(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

type countRecorder struct {
	mu     sync.Mutex
	counts []int
}

func (r *countRecorder) record(_ string, n int) {
	r.mu.Lock()
	r.counts = append(r.counts, n)
	r.mu.Unlock()
}

func (r *countRecorder) last() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.counts) == 0 {
		return 0, false
	}
	return r.counts[len(r.counts)-1], true
}

func waitForCount(t *testing.T, r *countRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if n, ok := r.last(); ok && n == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	n, _ := r.last()
	t.Fatalf("expected file count %d, last reported %d", want, n)
}

func TestWatch_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "data"), 0755)

	rec := &countRecorder{}
	w := New(rec.record, WithDebounce(50*time.Millisecond))
	defer w.Shutdown()

	if err := w.Watch("s1", dir); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitForCount(t, rec, 0)

	os.WriteFile(filepath.Join(dir, "data", "main.py"), []byte("print(1)"), 0644)
	waitForCount(t, rec, 1)

	os.MkdirAll(filepath.Join(dir, "output", "plots"), 0755)
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "output", "plots", "a.png"), []byte("png"), 0644)
	waitForCount(t, rec, 2)
}

func TestWatch_Unwatch(t *testing.T) {
	dir := t.TempDir()
	w := New(nil)

	if err := w.Watch("s1", dir); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !w.Watching("s1") {
		t.Fatal("expected s1 to be watched")
	}

	w.Unwatch("s1")
	if w.Watching("s1") {
		t.Error("expected s1 to be unwatched")
	}
	w.Unwatch("s1") // Idempotent.
}

func TestWatch_MissingDir(t *testing.T) {
	w := New(nil)
	defer w.Shutdown()

	if err := w.Watch("s1", filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Error("expected error for missing directory")
	}
	if w.Watching("s1") {
		t.Error("failed watch must not be registered")
	}
}
