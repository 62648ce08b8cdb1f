package report

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

const (
	defaultMmapMinSize = 4 * 1024 * 1024
	streamBufferSize   = 256 * 1024
)

var openMmapReader = mmap.Open

// openContent returns a reader over the report. Files at or above mmapMinSize
// are memory mapped; smaller files, or files that fail to map, are streamed.
func openContent(path string, mmapMinSize int64) (io.Reader, func() error, error) {
	if mmapMinSize <= 0 {
		mmapMinSize = defaultMmapMinSize
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, &os.PathError{Op: "open", Path: path, Err: errIsDirectory}
	}
	if info.Size() >= mmapMinSize {
		r, err := openMmapReader(path)
		if err == nil {
			return io.NewSectionReader(r, 0, int64(r.Len())), r.Close, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReaderSize(f, streamBufferSize), f.Close, nil
}
