package snapshot

// HeightAttribute caches the best block height of a layer. It only moves
// forward: Advance ignores heights that are not strictly higher than the
// current one.
type HeightAttribute struct {
	load  func() (uint32, bool, error)
	store func(uint32) error

	value  uint32
	known  bool
	loaded bool
	dirty  bool
}

func newHeightAttribute(load func() (uint32, bool, error), store func(uint32) error) *HeightAttribute {
	return &HeightAttribute{load: load, store: store}
}

// Get returns the height and false when no block has been stored yet.
func (h *HeightAttribute) Get() (uint32, bool, error) {
	if !h.loaded {
		value, known, err := h.load()
		if err != nil {
			return 0, false, err
		}
		h.value, h.known, h.loaded = value, known, true
	}
	return h.value, h.known, nil
}

// Advance raises the height to height if it is strictly higher.
func (h *HeightAttribute) Advance(height uint32) error {
	current, known, err := h.Get()
	if err != nil {
		return err
	}
	if known && height <= current {
		return nil
	}
	h.value, h.known, h.dirty = height, true, true
	return nil
}

// Commit pushes an advanced height to the underlying layer.
func (h *HeightAttribute) Commit() error {
	if !h.dirty {
		return nil
	}
	if err := h.store(h.value); err != nil {
		return err
	}
	h.dirty = false
	h.loaded = false
	return nil
}
