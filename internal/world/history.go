package world

import "fmt"

// historyCapacity bounds the rewind buffer. At the default 30 Hz tick rate
// this holds four seconds of frames.
const historyCapacity = 120

// frame is one captured moment: every live entity's full component record,
// deep-copied so later mutation cannot reach into the buffer.
type frame struct {
	entities map[EntityID]Record
}

// Capture appends a snapshot of every live entity to the rewind buffer,
// evicting the oldest frame once the buffer is full. An entity whose record
// fails to copy is left out of the frame and logged; the capture itself
// never fails.
func (w *World) Capture() {
	w.mu.Lock()
	defer w.mu.Unlock()

	f := frame{entities: make(map[EntityID]Record, len(w.entities))}
	for id, e := range w.entities {
		rec, err := w.readLocked(e, SupportedKinds()).Clone()
		if err != nil {
			w.log.Warn().Err(err).Uint64("entity", uint64(id)).Msg("entity omitted from captured frame")
			continue
		}
		f.entities[id] = rec
	}

	if len(w.history) == historyCapacity {
		copy(w.history, w.history[1:])
		w.history = w.history[:historyCapacity-1]
	}
	w.history = append(w.history, f)
}

// HistoryLen returns the number of captured frames available to Rewind.
func (w *World) HistoryLen() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.history)
}

// Rewind restores component state from the frame captured n frames ago
// (n=1 is the most recent capture) and discards that frame and everything
// newer. Entities spawned since the frame keep their current state;
// entities despawned since are not resurrected.
func (w *World) Rewind(n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n < 1 || n > len(w.history) {
		return fmt.Errorf("cannot rewind %d frames, %d captured", n, len(w.history))
	}

	f := w.history[len(w.history)-n]
	for id, rec := range f.entities {
		e, ok := w.entities[id]
		if !ok {
			continue
		}
		// Copy out of the frame too, in case the same frame is ever
		// restored twice.
		restored, err := rec.Clone()
		if err != nil {
			w.log.Warn().Err(err).Uint64("entity", uint64(id)).Msg("entity not restored from frame")
			continue
		}
		if restored.Transform != nil && e.transform != nil {
			*e.transform = *restored.Transform
		}
		if restored.Velocity != nil && e.velocity != nil {
			*e.velocity = *restored.Velocity
		}
		if restored.Health != nil && e.health != nil {
			*e.health = *restored.Health
		}
	}
	w.history = w.history[:len(w.history)-n]
	return nil
}
