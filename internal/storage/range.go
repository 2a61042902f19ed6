package storage

// normalizeRange converts an inclusive [start, stop] index pair with
// Redis LRANGE semantics (negative indexes count from the tail) into an
// offset and limit over a list of length n. ok is false for an empty result.
func normalizeRange(start, stop, n int64) (offset, limit int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop - start + 1, true
}
