// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package rescan walks a mounted volume's FAT and directory tree to find
// clusters a partial write left allocated but unreachable (C14), and
// optionally reclaims them. Grounded on the teacher's internal/scan
// package: same parallel, bounded-chunk fan-out over the image with a
// sync.WaitGroup, repurposed from a byte-signature scan into a FAT walk.
package rescan

import (
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/cryptfat/cryptfat/internal/fat32"
	"github.com/cryptfat/cryptfat/internal/logger"
)

// fatScanChunk is the number of cluster entries each worker walks per
// unit of work, mirroring the teacher's block-sized read chunks in
// internal/scan.Scan.
const fatScanChunk = 4096

// Report is the result of a rescan: the clusters the FAT marks allocated
// but that no path from root reaches, and the clusters that two or more
// chains both claim (a cross-link). Cross-linked clusters are reachable,
// so they never appear among the leaked chains and reclaim leaves them
// alone.
type Report struct {
	LeakedChains        []uint32
	CrossLinkedClusters []uint32
	ReclaimedClusters   int
}

// Options controls a rescan pass.
type Options struct {
	// Reclaim frees leaked chains' FAT entries after reporting them. When
	// false (the default), the scan is read-only.
	Reclaim bool
	Log     *logger.Logger
}

// Run walks fs's FAT and directory tree and returns a Report. With
// opts.Reclaim set, every leaked chain's FAT entries are freed (both FAT
// copies, per the chain-free rule in spec §4.9) before returning.
func Run(fs *fat32.FS, opts Options) (*Report, error) {
	log := opts.Log
	if log == nil {
		log = logger.New(nopWriter{}, logger.InfoLevel)
	}

	allocated, err := scanAllocated(fs)
	if err != nil {
		return nil, err
	}

	reachable, owner, err := walkReachable(fs)
	if err != nil {
		return nil, err
	}

	var errs error
	var leaked []uint32
	var crossLinked []uint32
	seenCross := make(map[uint32]bool)

	for cluster, count := range owner {
		if count > 1 && !seenCross[cluster] {
			seenCross[cluster] = true
			crossLinked = append(crossLinked, cluster)
		}
	}

	for c := uint32(2); c < fs.TotalDataClusters()+2; c++ {
		if allocated[c] && !reachable[c] {
			leaked = append(leaked, c)
		}
	}

	log.Infof("rescan: %d allocated clusters, %d leaked, %d cross-linked", len(allocated), len(leaked), len(crossLinked))

	report := &Report{LeakedChains: leaked, CrossLinkedClusters: crossLinked}

	if opts.Reclaim {
		reclaimed, err := reclaimLeaked(fs, leaked, log)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		report.ReclaimedClusters = reclaimed
		fs.InvalidateAll()
	}

	return report, errs
}

// scanAllocated walks every FAT entry in parallel, bounded chunks and
// returns the set of clusters that are not free.
func scanAllocated(fs *fat32.FS) (map[uint32]bool, error) {
	total := fs.TotalDataClusters()

	workers := min(runtime.NumCPU(), 8)
	if workers < 1 {
		workers = 1
	}

	type chunkResult struct {
		set map[uint32]bool
		err error
	}

	chunks := make(chan [2]uint32)
	results := make(chan chunkResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for bounds := range chunks {
				set := make(map[uint32]bool)
				var werr error
				for c := bounds[0]; c < bounds[1]; c++ {
					val, err := fs.ClusterEntry(c)
					if err != nil {
						werr = multierror.Append(werr, err)
						continue
					}
					if val != 0 {
						set[c] = true
					}
				}
				results <- chunkResult{set: set, err: werr}
			}
		}()
	}

	go func() {
		for start := uint32(2); start < total+2; start += fatScanChunk {
			end := start + fatScanChunk
			if end > total+2 {
				end = total + 2
			}
			chunks <- [2]uint32{start, end}
		}
		close(chunks)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	allocated := make(map[uint32]bool)
	var errs error
	for r := range results {
		if r.err != nil {
			errs = multierror.Append(errs, r.err)
			continue
		}
		for c := range r.set {
			allocated[c] = true
		}
	}
	return allocated, errs
}

// walkReachable walks the directory tree from root, returning every
// cluster reachable from a live directory entry and, per cluster, how
// many distinct chains claim it (more than one means a cross-link).
func walkReachable(fs *fat32.FS) (map[uint32]bool, map[uint32]int, error) {
	reachable := make(map[uint32]bool)
	owner := make(map[uint32]int)

	rootChain, err := fs.ChainOf(fs.RootFirstCluster())
	if err != nil {
		return nil, nil, err
	}
	markChain(reachable, owner, rootChain)

	var errs error
	var walk func(path string)
	walk = func(path string) {
		entries, err := fs.ListDir(path)
		if err != nil {
			errs = multierror.Append(errs, err)
			return
		}
		for _, e := range entries {
			if e.FirstCluster == 0 {
				continue // empty file, or root-level ".."; nothing to chain
			}
			chain, err := fs.ChainOf(e.FirstCluster)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			markChain(reachable, owner, chain)
			if e.IsDirectory {
				walk(e.Path)
			}
		}
	}
	walk("/")

	return reachable, owner, errs
}

func markChain(reachable map[uint32]bool, owner map[uint32]int, chain []uint32) {
	for _, c := range chain {
		reachable[c] = true
		owner[c]++
	}
}

// reclaimLeaked frees every leaked chain's FAT entries. Cross-linked
// clusters are excluded upstream (walkReachable would have marked them
// reachable via at least one owner), so this only ever touches clusters
// no live directory entry points to at all.
func reclaimLeaked(fs *fat32.FS, leaked []uint32, log *logger.Logger) (int, error) {
	var errs error
	reclaimed := 0
	for _, c := range leaked {
		if err := fs.ReclaimChain(c); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		log.Debugf("rescan: reclaimed leaked cluster %d", c)
		reclaimed++
	}
	return reclaimed, errs
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
