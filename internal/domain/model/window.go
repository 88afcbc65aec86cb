package model

// WindowCapacity is the maximum number of readings retained for display:
// 24 hours at 10-minute spacing.
const WindowCapacity = 144

// ReadingWindow is a bounded ordered sequence of readings, newest last.
// Appending beyond capacity evicts from the front. The zero value is usable.
type ReadingWindow struct {
	readings []Reading
	capacity int
}

// NewReadingWindow creates a window with the given capacity. A capacity of
// zero or less falls back to WindowCapacity.
func NewReadingWindow(capacity int) *ReadingWindow {
	if capacity <= 0 {
		capacity = WindowCapacity
	}
	return &ReadingWindow{capacity: capacity}
}

// Append pushes a reading onto the end of the window, evicting the oldest
// entry when the window is full.
func (w *ReadingWindow) Append(r Reading) {
	if w.capacity == 0 {
		w.capacity = WindowCapacity
	}
	w.readings = append(w.readings, r)
	if len(w.readings) > w.capacity {
		w.readings = w.readings[1:]
	}
}

// Replace discards the current contents and seeds the window from the given
// ordered readings, keeping only the newest entries when the input exceeds
// capacity.
func (w *ReadingWindow) Replace(readings []Reading) {
	if w.capacity == 0 {
		w.capacity = WindowCapacity
	}
	if len(readings) > w.capacity {
		readings = readings[len(readings)-w.capacity:]
	}
	w.readings = append(w.readings[:0], readings...)
}

// Latest returns the newest reading, or nil when the window is empty.
func (w *ReadingWindow) Latest() *Reading {
	if len(w.readings) == 0 {
		return nil
	}
	r := w.readings[len(w.readings)-1]
	return &r
}

// Snapshot returns a copy of the window contents, oldest first.
func (w *ReadingWindow) Snapshot() []Reading {
	out := make([]Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

// Len returns the number of readings currently held.
func (w *ReadingWindow) Len() int {
	return len(w.readings)
}
