package core

import "sync"

// codec pairs the decoder and encoder registered for one format.  Either
// side may be nil: SVG has neither, GIF registers only a decoder.
type codec struct {
	dec Decoder
	enc Encoder
}

// DefaultRegistry maps formats to their codecs; safe for concurrent use.
type DefaultRegistry struct {
	mu     sync.RWMutex
	codecs map[Format]codec
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{codecs: make(map[Format]codec)}
}

func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.codecs[f]
	c.dec = d
	r.codecs[f] = c
}

func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.codecs[f]
	c.enc = e
	r.codecs[f] = c
}

func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[f]
	return c.dec, ok && c.dec != nil
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[f]
	return c.enc, ok && c.enc != nil
}
