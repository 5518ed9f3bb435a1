package merge

import "slices"

// Sequence merges ordered, duplicate-tolerant string lists such as
// extra_strings. Ancestor entries survive unless a side removed them, then
// come entries local added, then entries remote added that local did not
// also add. Each group keeps its original relative order. Counts are
// respected, so an entry both sides added once appears once.
func Sequence(base, local, remote []string) []string {
	if slices.Equal(local, remote) {
		return slices.Clone(local)
	}
	cb, cl, cr := counts(base), counts(local), counts(remote)

	var out []string
	kept := make(map[string]int)
	for _, s := range base {
		if kept[s] < min(cb[s], cl[s], cr[s]) {
			out = append(out, s)
			kept[s]++
		}
	}

	localAdded := added(local, cb)
	out = append(out, localAdded...)

	la := counts(localAdded)
	for _, s := range added(remote, cb) {
		if la[s] > 0 {
			la[s]--
			continue
		}
		out = append(out, s)
	}
	return out
}

// added returns the entries of side beyond the ancestor's count of each
// value, skipping the first occurrences that the ancestor accounts for.
func added(side []string, cb map[string]int) []string {
	var out []string
	seen := make(map[string]int)
	for _, s := range side {
		seen[s]++
		if seen[s] > cb[s] {
			out = append(out, s)
		}
	}
	return out
}

func counts(s []string) map[string]int {
	m := make(map[string]int, len(s))
	for _, v := range s {
		m[v]++
	}
	return m
}
