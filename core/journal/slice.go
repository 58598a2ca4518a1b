// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package journal

import (
	"hash/fnv"

	"github.com/juju/errors"
)

// NumberOfSlices is the fixed size of the slice space. Persistence ids
// hash onto [0, NumberOfSlices). The value must never change for a
// populated journal, as stored slices would no longer match.
const NumberOfSlices = 1024

// SliceForPersistenceID returns the deterministic slice for the given
// persistence id.
func SliceForPersistenceID(persistenceID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(persistenceID))
	return int(h.Sum32() % NumberOfSlices)
}

// SliceRange is a contiguous, inclusive range of slices.
type SliceRange struct {
	Min int
	Max int
}

// FullSliceRange covers the entire slice space.
var FullSliceRange = SliceRange{Min: 0, Max: NumberOfSlices - 1}

// Contains reports whether the slice falls within the range.
func (r SliceRange) Contains(slice int) bool {
	return slice >= r.Min && slice <= r.Max
}

// SliceRanges splits the slice space into n contiguous ranges, for
// sharding a projection over n workers. n must divide NumberOfSlices.
func SliceRanges(n int) ([]SliceRange, error) {
	if n <= 0 || NumberOfSlices%n != 0 {
		return nil, errors.NotValidf("%d slice ranges", n)
	}
	size := NumberOfSlices / n
	ranges := make([]SliceRange, n)
	for i := 0; i < n; i++ {
		ranges[i] = SliceRange{Min: i * size, Max: (i+1)*size - 1}
	}
	return ranges, nil
}
