package world

// Txn is an open journal over world mutations. Rollback undoes every change
// made since Begin; Commit keeps them. Txns nest: an inner Rollback only
// undoes what happened after the inner Begin.
type Txn struct {
	w    *World
	mark int
	done bool
}

// Begin opens a journal.
func (w *World) Begin() *Txn {
	w.depth++
	return &Txn{w: w, mark: len(w.undo)}
}

// Rollback undoes every mutation made since Begin. Calling it after Commit
// or a previous Rollback is a no-op.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	w := t.w
	for i := len(w.undo) - 1; i >= t.mark; i-- {
		w.undo[i]()
	}
	w.undo = w.undo[:t.mark]
	w.close()
}

// Commit keeps the mutations made since Begin.
func (t *Txn) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.w.close()
}

func (w *World) close() {
	w.depth--
	if w.depth == 0 {
		w.undo = nil
	}
}

// record appends an undo step while a journal is open.
func (w *World) record(undo func()) {
	if w.depth == 0 {
		return
	}
	w.undo = append(w.undo, undo)
}
