package indicator

// SMA is the mean of the last period inputs, kept as a running sum over a
// fixed window.
type SMA struct {
	window []float64
	next   int
	filled bool
	sum    float64
}

func NewSMA(period int) *SMA {
	return &SMA{window: make([]float64, period)}
}

func (s *SMA) Kind() Kind { return KindSMA }

func (s *SMA) Update(x float64) {
	s.sum += x - s.window[s.next]
	s.window[s.next] = x
	s.next++
	if s.next == len(s.window) {
		s.next = 0
		s.filled = true
	}
}

func (s *SMA) Value() float64 {
	if !s.filled {
		return 0
	}
	return s.sum / float64(len(s.window))
}

func (s *SMA) Ready() bool { return s.filled }

func (s *SMA) Clone() Indicator {
	cp := *s
	cp.window = append([]float64(nil), s.window...)
	return &cp
}
