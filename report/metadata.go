package report

import (
	"os"
	"time"

	"covimport/hasher"

	"github.com/djherbis/times"
)

// Metadata describes a report file on disk.
type Metadata struct {
	Size         int64             `json:"size"`
	ModTime      string            `json:"mod_time,omitempty"`
	CreationTime string            `json:"creation_time,omitempty"`
	Digests      map[string]string `json:"digests,omitempty"`
}

// Describe gathers size, timestamps and content digests for a report.
func Describe(location string) (Metadata, error) {
	info, err := os.Stat(location)
	if err != nil {
		return Metadata{}, err
	}
	meta := Metadata{
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Format(time.RFC3339),
	}
	if ts, err := times.Stat(location); err == nil && ts.HasBirthTime() {
		meta.CreationTime = ts.BirthTime().UTC().Format(time.RFC3339)
	}
	meta.Digests = hasher.ComputeHashes(location, hasher.DefaultAlgorithms)
	return meta, nil
}
