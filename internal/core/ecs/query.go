package ecs

// Each2 iterates over entities that have both component A and B.
// It iterates over the smaller store and checks the larger one.
func Each2[A, B any](sa *Store[A], sb *Store[B], fn func(EntityID, *A, *B)) {
	if sa.Len() <= sb.Len() {
		for id, a := range sa.data {
			if b, ok := sb.data[id]; ok {
				fn(id, a, b)
			}
		}
		return
	}
	for id, b := range sb.data {
		if a, ok := sa.data[id]; ok {
			fn(id, a, b)
		}
	}
}

// Join2 is the dense-copy form of Each2 used to feed parallel-for jobs.
func Join2[A, B any](sa *Store[A], sb *Store[B]) ([]EntityID, []A, []B) {
	n := min(sa.Len(), sb.Len())
	ids := make([]EntityID, 0, n)
	as := make([]A, 0, n)
	bs := make([]B, 0, n)
	Each2(sa, sb, func(id EntityID, a *A, b *B) {
		ids = append(ids, id)
		as = append(as, *a)
		bs = append(bs, *b)
	})
	return ids, as, bs
}
