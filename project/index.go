package project

import "sort"

// File is a project source file known to the index.
type File struct {
	// Key is the slash-separated path relative to the file's source directory,
	// e.g. "org/example/Foo.java".
	Key string `json:"key"`
	// Path is the absolute location on disk.
	Path string `json:"path"`
	// SourceDir is the project-relative source directory the file was found in.
	SourceDir string `json:"source_dir"`
}

func (f File) String() string {
	if f.SourceDir == "" || f.SourceDir == "." {
		return f.Key
	}
	return f.SourceDir + "/" + f.Key
}

// Index maps source-relative keys to project files. It is read-only once
// built and safe for concurrent lookups.
type Index struct {
	files map[string]File
}

// NewIndex builds an index from an explicit file listing. When two entries
// share a key the first one wins.
func NewIndex(files []File) *Index {
	ix := &Index{files: make(map[string]File, len(files))}
	for _, f := range files {
		if _, ok := ix.files[f.Key]; ok {
			continue
		}
		ix.files[f.Key] = f
	}
	return ix
}

// CandidateKey builds the lookup key for a report package and file name.
func CandidateKey(packageName, fileName string) string {
	if packageName == "" {
		return fileName
	}
	return packageName + "/" + fileName
}

// Resolve looks up the exact key built from packageName and fileName.
// A missing file is reported through the boolean, never as an error.
func (ix *Index) Resolve(packageName, fileName string) (File, bool) {
	if ix == nil || fileName == "" {
		return File{}, false
	}
	f, ok := ix.files[CandidateKey(packageName, fileName)]
	return f, ok
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.files)
}

// Files returns the indexed files sorted by key.
func (ix *Index) Files() []File {
	if ix == nil {
		return nil
	}
	out := make([]File, 0, len(ix.files))
	for _, f := range ix.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
