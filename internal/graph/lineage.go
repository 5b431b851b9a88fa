package graph

// DefaultMaxTraversalDepth caps BFS depth when callers ask for "infinite";
// an unbounded walk over a cyclic graph would otherwise never terminate
// cleanly under the visited-set guard alone on pathological inputs.
const DefaultMaxTraversalDepth = 1000

// LineageEngine computes direction-aware, seed-excluding ancestor/descendant
// traversals over the relationships in a Store.
type LineageEngine struct {
	store *Store
}

func NewLineageEngine(store *Store) *LineageEngine {
	return &LineageEngine{store: store}
}

// Ancestors performs a BFS over incoming edges from seed, returning entities
// in discovery order and excluding the seed itself. maxDepth <= 0 means
// unbounded (capped at DefaultMaxTraversalDepth).
func (l *LineageEngine) Ancestors(seed string, maxDepth int) ([]*Entity, error) {
	return l.walk(seed, maxDepth, true)
}

// Descendants performs a BFS over outgoing edges from seed, returning
// entities in discovery order and excluding the seed itself.
func (l *LineageEngine) Descendants(seed string, maxDepth int) ([]*Entity, error) {
	return l.walk(seed, maxDepth, false)
}

// walk runs a level-by-level BFS. When incoming is true it follows edges
// where the node being expanded is the target (ancestors); otherwise it
// follows edges where the node is the source (descendants).
func (l *LineageEngine) walk(seed string, maxDepth int, incoming bool) ([]*Entity, error) {
	if _, err := l.store.GetEntity(seed); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTraversalDepth
	}

	visited := map[string]bool{seed: true}
	order := make([]string, 0)
	queue := []string{seed}

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []string
		for _, id := range queue {
			for _, r := range l.store.FindByEntity(id) {
				var neighbor string
				switch {
				case incoming && r.TargetID == id:
					neighbor = r.SourceID
				case !incoming && r.SourceID == id:
					neighbor = r.TargetID
				default:
					continue
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				order = append(order, neighbor)
				next = append(next, neighbor)
			}
		}
		queue = next
	}

	out := make([]*Entity, 0, len(order))
	for _, id := range order {
		e, err := l.store.GetEntity(id)
		if err != nil {
			continue // entity deleted mid-walk; skip rather than fail the whole traversal
		}
		out = append(out, e)
	}
	return out, nil
}
