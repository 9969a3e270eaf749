package heap

import (
	"strconv"
	"strings"
)

// splitHeapID separates a heapid into its prefix and trailing decimal number.
// A heapid without trailing digits is all prefix, with number -1.
func splitHeapID(id string) (prefix string, number int) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return id, -1
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return id, -1
	}
	return id[:i], n
}

// CompareIDs orders heapids by prefix, then by trailing number, then as
// plain strings. "9" sorts before "10", "a2" before "b1".
func CompareIDs(a, b string) int {
	if a == b {
		return 0
	}
	pa, na := splitHeapID(a)
	pb, nb := splitHeapID(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	if na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// ComparePosts is the fixed total order over posts: date timestamp first
// (posts without a date count as 0), then heapid.
func ComparePosts(a, b *Post) int {
	ta, tb := a.Timestamp(), b.Timestamp()
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	return CompareIDs(a.id, b.id)
}
