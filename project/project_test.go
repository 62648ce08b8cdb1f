package project

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"covimport/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("class X {}\n"), 0600))
}

func TestResolveExactMatchOnly(t *testing.T) {
	ix := NewIndex([]File{
		{Key: "org/example/Foo.java", Path: "/p/src/main/java/org/example/Foo.java", SourceDir: "src/main/java"},
		{Key: "Top.java", Path: "/p/src/main/java/Top.java", SourceDir: "src/main/java"},
	})

	f, ok := ix.Resolve("org/example", "Foo.java")
	require.True(t, ok)
	assert.Equal(t, "/p/src/main/java/org/example/Foo.java", f.Path)
	assert.Equal(t, "src/main/java/org/example/Foo.java", f.String())

	_, ok = ix.Resolve("org/Example", "Foo.java")
	assert.False(t, ok, "lookups are case sensitive")
	_, ok = ix.Resolve("example", "Foo.java")
	assert.False(t, ok, "no suffix matching")
	_, ok = ix.Resolve("org/example", "Foo")
	assert.False(t, ok)
	_, ok = ix.Resolve("org/example", "")
	assert.False(t, ok)

	f, ok = ix.Resolve("", "Top.java")
	require.True(t, ok)
	assert.Equal(t, "Top.java", f.Key)

	_, ok = ix.Resolve("org/./example", "Foo.java")
	assert.False(t, ok, "package paths are not cleaned")
	_, ok = ix.Resolve("org/other/../example", "Foo.java")
	assert.False(t, ok, "parent segments are not collapsed")
	_, ok = ix.Resolve("org/example/", "Foo.java")
	assert.False(t, ok, "trailing slashes are kept")
}

func TestCandidateKey(t *testing.T) {
	assert.Equal(t, "Top.java", CandidateKey("", "Top.java"))
	assert.Equal(t, "org/example/Foo.java", CandidateKey("org/example", "Foo.java"))
	assert.Equal(t, "org/./example/Foo.java", CandidateKey("org/./example", "Foo.java"))
}

func TestNewIndexFirstEntryWins(t *testing.T) {
	ix := NewIndex([]File{
		{Key: "a/A.java", Path: "/first"},
		{Key: "a/A.java", Path: "/second"},
	})
	f, ok := ix.Resolve("a", "A.java")
	require.True(t, ok)
	assert.Equal(t, "/first", f.Path)
	assert.Equal(t, 1, ix.Len())
}

func TestNilIndex(t *testing.T) {
	var ix *Index
	_, ok := ix.Resolve("a", "A.java")
	assert.False(t, ok)
	assert.Equal(t, 0, ix.Len())
	assert.Nil(t, ix.Files())
}

func TestResolveConcurrent(t *testing.T) {
	ix := NewIndex([]File{{Key: "a/b/C.java", Path: "/c"}})
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, ok := ix.Resolve("a/b", "C.java")
			assert.True(t, ok)
			assert.Equal(t, "/c", f.Path)
		}()
	}
	wg.Wait()
}

func TestScanIndexesSourceDirectories(t *testing.T) {
	logger.Init("error")
	base := t.TempDir()
	touch(t, filepath.Join(base, "src", "main", "java", "org", "example", "Foo.java"))
	touch(t, filepath.Join(base, "src", "main", "kotlin", "org", "example", "Bar.kt"))
	touch(t, filepath.Join(base, "src", "test", "java", "org", "example", "Foo.java"))
	touch(t, filepath.Join(base, "src", "main", "java", ".git", "config"))
	touch(t, filepath.Join(base, "README.md"))

	ix, err := Scan(context.Background(), ScanOptions{BaseDir: base})
	require.NoError(t, err)

	keys := make([]string, 0, ix.Len())
	for _, f := range ix.Files() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"org/example/Bar.kt", "org/example/Foo.java"}, keys)

	foo, ok := ix.Resolve("org/example", "Foo.java")
	require.True(t, ok)
	assert.Equal(t, "src/main/java", foo.SourceDir, "first source directory wins")
	assert.Equal(t, filepath.Join(base, "src", "main", "java", "org", "example", "Foo.java"), foo.Path)
}

func TestScanAppliesPatternsAndCustomRoots(t *testing.T) {
	logger.Init("error")
	base := t.TempDir()
	touch(t, filepath.Join(base, "app", "com", "acme", "Service.java"))
	touch(t, filepath.Join(base, "app", "com", "acme", "generated", "Stub.java"))
	touch(t, filepath.Join(base, "app", "com", "acme", "notes.txt"))

	ix, err := Scan(context.Background(), ScanOptions{
		BaseDir:         base,
		SourceDirs:      []string{"app", "missing", "../elsewhere"},
		IncludePatterns: []string{"*.java"},
		ExcludePatterns: []string{"**/generated/**"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())
	_, ok := ix.Resolve("com/acme", "Service.java")
	assert.True(t, ok)
}

func TestScanProjectRootAsSourceDir(t *testing.T) {
	logger.Init("error")
	base := t.TempDir()
	touch(t, filepath.Join(base, "pkg", "Main.java"))

	ix, err := Scan(context.Background(), ScanOptions{BaseDir: base, SourceDirs: []string{"."}})
	require.NoError(t, err)
	f, ok := ix.Resolve("pkg", "Main.java")
	require.True(t, ok)
	assert.Equal(t, "pkg/Main.java", f.String())
}

func TestScanCanceled(t *testing.T) {
	logger.Init("error")
	base := t.TempDir()
	touch(t, filepath.Join(base, "src", "main", "java", "A.java"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, ScanOptions{BaseDir: base})
	assert.ErrorIs(t, err, context.Canceled)
}
