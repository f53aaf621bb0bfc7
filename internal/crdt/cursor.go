package crdt

// window implements the shared get() semantics of spec §4.C: head/tail
// selection, cursor location, and reverse. ids is the algorithm's current
// display order. It returns (nil, nil, false) when cursorID1 is non-empty
// but not found ("None" in the spec — caller must refetch from scratch).
func window(ids [][32]byte, cursorID1 *[32]byte, head, tail int, reverse bool) (out [][32]byte, indexes []int, found bool) {
	if reverse {
		head, tail = tail, head
	}
	if (head == 0) == (tail == 0) {
		// Both zero or both non-zero: spec requires exactly one to be set.
		return nil, nil, true
	}

	cursorIdx := -1
	if cursorID1 != nil {
		for i, id := range ids {
			if id == *cursorID1 {
				cursorIdx = i
				break
			}
		}
		if cursorIdx == -1 {
			return nil, nil, false
		}
	}

	var start, end int
	if head != 0 {
		n := head
		if n == -1 {
			n = len(ids)
		}
		start = 0
		if cursorIdx >= 0 {
			start = cursorIdx + 1
		}
		end = start + n
		if end > len(ids) {
			end = len(ids)
		}
		if start > len(ids) {
			start = len(ids)
		}
	} else {
		n := tail
		if n == -1 {
			n = len(ids)
		}
		end = len(ids)
		if cursorIdx >= 0 {
			end = cursorIdx
		}
		start = end - n
		if start < 0 {
			start = 0
		}
	}

	slice := ids[start:end]
	idxs := make([]int, len(slice))
	for i := range slice {
		idxs[i] = start + i
	}
	if reverse {
		out = make([][32]byte, len(slice))
		revIdx := make([]int, len(slice))
		for i := range slice {
			out[len(slice)-1-i] = slice[i]
			revIdx[len(slice)-1-i] = idxs[i]
		}
		return out, revIdx, true
	}
	return append([][32]byte(nil), slice...), idxs, true
}
