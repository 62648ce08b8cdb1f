package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPathWithin(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "a", "b.txt")
	outside := filepath.Join(filepath.Dir(root), "outside.txt")

	assert.True(t, IsPathWithin(child, []string{root}))
	assert.False(t, IsPathWithin(outside, []string{root}))
}

func TestIsPathWithinMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	inB := filepath.Join(rootB, "nested", "file.txt")

	assert.True(t, IsPathWithin(inB, []string{rootA, rootB}))
}

func TestResolvePath(t *testing.T) {
	base := filepath.Join("project", "base")
	assert.Equal(t, filepath.Join(base, "target", "jacoco.xml"), ResolvePath(base, filepath.Join("target", "jacoco.xml")))
	abs, err := filepath.Abs("jacoco.xml")
	require.NoError(t, err)
	assert.Equal(t, abs, ResolvePath(base, abs))
	assert.Equal(t, base, ResolvePath(base, ""))
}

func TestSlashRel(t *testing.T) {
	base := filepath.Join("a", "b")
	rel, err := SlashRel(base, filepath.Join("a", "b", "org", "Foo.java"))
	require.NoError(t, err)
	assert.Equal(t, "org/Foo.java", rel)
}
