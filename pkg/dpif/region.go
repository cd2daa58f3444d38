// Package dpif implements the daemon-side persistent shadow tables
// spec.md §4.7 describes: a flow shadow mapping OpenFlow keys to
// datapath flow handles, and a vport shadow recording which pipeline
// owns each port. Both are backed by a file mapped with
// golang.org/x/sys/unix.Mmap so an unrelated daemon process can later
// attach the same file and see identical bytes at identical offsets —
// the re-architecture spec.md §9's REDESIGN FLAGS section calls for:
// "a region with a schema (magic, version, payload layout) and
// per-field accessors that validate magic/version on open", in place
// of raw cross-process pointers.
package dpif

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// headerSize is the fixed byte layout of a region's leading header:
// magic(4) | version(4) | count(4) | reserved(4).
const headerSize = 16

// Region is an mmap'd file with a validated (magic, version) header
// followed by capacity fixed-size records.
type Region struct {
	file       *os.File
	data       []byte
	recordSize int
	capacity   int
}

// Create makes a new region file at path sized to hold capacity
// records of recordSize bytes, zeroed, and writes magic/version into
// its header. Permissions follow spec.md §4.7's "0751-ish".
func Create(path string, magic, version uint32, recordSize, capacity int) (*Region, error) {
	size := headerSize + recordSize*capacity

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0751)
	if err != nil {
		return nil, fmt.Errorf("dpif: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("dpif: truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("dpif: mmap %s: %w", path, err)
	}

	binary.LittleEndian.PutUint32(data[0:4], magic)
	binary.LittleEndian.PutUint32(data[4:8], version)
	binary.LittleEndian.PutUint32(data[8:12], 0)

	return &Region{file: f, data: data, recordSize: recordSize, capacity: capacity}, nil
}

// Open attaches an existing region file, validating its magic and
// version against the caller's expectations.
func Open(path string, wantMagic, wantVersion uint32, recordSize, capacity int) (*Region, error) {
	size := headerSize + recordSize*capacity

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("dpif: open %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("dpif: mmap %s: %w", path, err)
	}

	gotMagic := binary.LittleEndian.Uint32(data[0:4])
	gotVersion := binary.LittleEndian.Uint32(data[4:8])
	if gotMagic != wantMagic {
		unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("dpif: %s: bad magic %#x, want %#x", path, gotMagic, wantMagic)
	}
	if gotVersion != wantVersion {
		unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("dpif: %s: bad version %d, want %d", path, gotVersion, wantVersion)
	}

	return &Region{file: f, data: data, recordSize: recordSize, capacity: capacity}, nil
}

// Close unmaps and closes the region's file.
func (r *Region) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return err
	}
	return r.file.Close()
}

// record returns the byte slice for record i, i in [0, capacity).
func (r *Region) record(i int) []byte {
	off := headerSize + i*r.recordSize
	return r.data[off : off+r.recordSize]
}

// RecordBytes exposes record i to other packages (e.g. memnic) that
// lay their own schema out within a single dpif-managed record rather
// than dpif's own fixed-field layout.
func (r *Region) RecordBytes(i int) []byte { return r.record(i) }

// Capacity returns the number of fixed-size records the region holds.
func (r *Region) Capacity() int { return r.capacity }
