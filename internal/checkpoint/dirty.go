package checkpoint

// Slots is the default capacity of the dirty set.
const Slots = 16

// Dirty is a small fixed-capacity set of uids whose queue files are
// stale. When more distinct users change than it holds, it overflows and
// the next checkpoint sweeps everybody.
type Dirty struct {
	uids     []int
	cap      int
	overflow bool
}

func NewDirty(n int) *Dirty {
	if n <= 0 {
		n = Slots
	}
	return &Dirty{uids: make([]int, 0, n), cap: n}
}

func (d *Dirty) Mark(uid int) {
	if d.overflow || d.Has(uid) {
		return
	}
	if len(d.uids) == d.cap {
		d.overflow = true
		d.uids = d.uids[:0]
		return
	}
	d.uids = append(d.uids, uid)
}

// Has reports whether uid must be checkpointed. Everyone is dirty after
// an overflow.
func (d *Dirty) Has(uid int) bool {
	if d.overflow {
		return true
	}
	for _, u := range d.uids {
		if u == uid {
			return true
		}
	}
	return false
}

func (d *Dirty) Empty() bool { return !d.overflow && len(d.uids) == 0 }

func (d *Dirty) Overflow() bool { return d.overflow }

// Take empties the set and returns its content.
func (d *Dirty) Take() (uids []int, overflow bool) {
	uids = append([]int(nil), d.uids...)
	overflow = d.overflow
	d.uids = d.uids[:0]
	d.overflow = false
	return uids, overflow
}

func (d *Dirty) remove(uid int) {
	for i, u := range d.uids {
		if u == uid {
			d.uids = append(d.uids[:i], d.uids[i+1:]...)
			return
		}
	}
}
