// Package nodeset is a sparse mmap-backed bitset of node ids
package nodeset

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// DefaultMaxID covers current planet node ids with headroom
const DefaultMaxID = 16_000_000_000

// Set records which node ids have been seen. Bit n lives at byte n/8, so a
// set covering DefaultMaxID reserves 2GB of address space but only touches
// the pages holding ids actually marked.
type Set struct {
	data  mmap.MMap
	file  *os.File
	maxID int64
}

// New maps a bitset for ids in [0, maxID). With an empty dir the mapping is
// anonymous; otherwise it is backed by a sparse temporary file in dir that
// is removed on Close.
func New(dir string, maxID int64) (*Set, error) {
	if maxID <= 0 {
		maxID = DefaultMaxID
	}
	size := int((maxID + 7) / 8)

	if dir == "" {
		data, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to map node set: %w", err)
		}
		return &Set{data: data, maxID: maxID}, nil
	}

	f, err := os.CreateTemp(dir, "nodeset-*.bin")
	if err != nil {
		return nil, fmt.Errorf("failed to create node set file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to truncate node set file: %w", err)
	}
	data, err := mmap.MapRegion(f, size, mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to map node set file: %w", err)
	}
	return &Set{data: data, file: f, maxID: maxID}, nil
}

// InRange reports whether id can be stored
func (s *Set) InRange(id int64) bool {
	return id >= 0 && id < s.maxID
}

// Add marks id. Out of range ids are ignored.
func (s *Set) Add(id int64) {
	if !s.InRange(id) {
		return
	}
	s.data[id>>3] |= 1 << (id & 7)
}

// Has reports whether id was marked
func (s *Set) Has(id int64) bool {
	if !s.InRange(id) {
		return false
	}
	return s.data[id>>3]&(1<<(id&7)) != 0
}

// Close unmaps the set and removes its backing file
func (s *Set) Close() error {
	err := s.data.Unmap()
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if rerr := os.Remove(s.file.Name()); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
