package app

// BandSummary is one band of a Summary. Powers are in W.
type BandSummary struct {
	Band           string  `json:"band"`
	MinUm          float64 `json:"min_um"`
	MaxUm          float64 `json:"max_um"`
	PowerW         float64 `json:"power_w"`
	SNR            float64 `json:"snr"`
	TwoPointPowerW float64 `json:"two_point_power_w"`
	TwoPointSNR    float64 `json:"two_point_snr"`
}

// Summary is the flat, serialisable view of a Result.
type Summary struct {
	RunID     string        `json:"run_id"`
	Scenario  string        `json:"scenario"`
	Signature string        `json:"signature,omitempty"`
	GFactor   float64       `json:"g_factor"`
	NEPW      float64       `json:"nep_w"`
	Bands     []BandSummary `json:"bands"`
	ElapsedMS float64       `json:"elapsed_ms"`
}

// Summary pairs every full-integration response with its two-point
// counterpart.
func (r Result) Summary() Summary {
	s := Summary{
		RunID:     r.RunID,
		Scenario:  r.Scenario,
		Signature: r.Signature,
		GFactor:   r.GFactor,
		NEPW:      r.NEP.Value(),
		Bands:     make([]BandSummary, 0, len(r.Responses)),
		ElapsedMS: r.Elapsed.Seconds() * 1000,
	}
	for i, resp := range r.Responses {
		b := BandSummary{
			Band:   resp.Band.Name,
			MinUm:  resp.Band.Min,
			MaxUm:  resp.Band.Max,
			PowerW: resp.Power.Value(),
			SNR:    resp.SNR,
		}
		if i < len(r.TwoPoint) {
			b.TwoPointPowerW = r.TwoPoint[i].Power.Value()
			b.TwoPointSNR = r.TwoPoint[i].SNR
		}
		s.Bands = append(s.Bands, b)
	}
	return s
}
