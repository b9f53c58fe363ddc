package task

const firstChunk = 16

// Pool recycles records through a free list. It grows in doubling
// chunks and never shrinks. Records are reset on every Get so nothing
// of a previous user survives reuse.
type Pool[T any] struct {
	free  []*T
	chunk int
	total int
	reset func(*T)
}

func NewPool[T any](reset func(*T)) *Pool[T] {
	return &Pool[T]{chunk: firstChunk, reset: reset}
}

func (p *Pool[T]) Get() *T {
	if len(p.free) == 0 {
		p.grow()
	}
	n := len(p.free) - 1
	x := p.free[n]
	p.free[n] = nil
	p.free = p.free[:n]
	if p.reset != nil {
		p.reset(x)
	} else {
		var zero T
		*x = zero
	}
	return x
}

func (p *Pool[T]) Put(x *T) {
	if x != nil {
		p.free = append(p.free, x)
	}
}

func (p *Pool[T]) grow() {
	block := make([]T, p.chunk)
	for i := range block {
		p.free = append(p.free, &block[i])
	}
	p.total += p.chunk
	p.chunk *= 2
}

// Total is the number of records ever allocated.
func (p *Pool[T]) Total() int { return p.total }

// InUse is the number of records handed out and not returned.
func (p *Pool[T]) InUse() int { return p.total - len(p.free) }
