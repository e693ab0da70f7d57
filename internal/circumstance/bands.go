package circumstance

import "neodisc/internal/config"

// Bands converts magnitudes in a photometric band to an approximate V-band
// equivalent by an additive offset.
type Bands struct {
	offsets map[string]float64
	blank   float64
	def     float64
}

// NewBands builds the correction table from validated configuration.
func NewBands(cfg config.Bands) (Bands, error) {
	if err := cfg.Validate(); err != nil {
		return Bands{}, err
	}
	offsets := make(map[string]float64, len(cfg.Offsets))
	for code, off := range cfg.Offsets {
		offsets[code] = off
	}
	return Bands{offsets: offsets, blank: cfg.Blank, def: cfg.Default}, nil
}

// Correction returns the offset for band. A blank band code gets the blank
// offset; a missing band and an unlisted code get the default offset.
func (b Bands) Correction(band *string) float64 {
	if band == nil {
		return b.def
	}
	if *band == "" || *band == " " {
		return b.blank
	}
	if off, ok := b.offsets[*band]; ok {
		return off
	}
	return b.def
}
