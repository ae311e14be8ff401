package indicator

// smoother is the seed-then-decay recurrence shared by EMA, SMMA and the RSI
// averages: the first value is the mean of the first period inputs, after
// which each input moves the value by alpha of the gap.
type smoother struct {
	period int
	alpha  float64
	n      int
	seed   float64
	value  float64
}

func newSmoother(period int, alpha float64) smoother {
	return smoother{period: period, alpha: alpha}
}

func (s *smoother) add(x float64) {
	s.n++
	switch {
	case s.n < s.period:
		s.seed += x
	case s.n == s.period:
		s.value = (s.seed + x) / float64(s.period)
	default:
		s.value = x*s.alpha + s.value*(1-s.alpha)
	}
}

func (s *smoother) ready() bool { return s.n >= s.period }

// EMA is the exponential moving average, k = 2/(period+1).
type EMA struct{ s smoother }

func NewEMA(period int) *EMA {
	return &EMA{s: newSmoother(period, 2/float64(period+1))}
}

func (e *EMA) Kind() Kind { return KindEMA }
func (e *EMA) Update(x float64) { e.s.add(x) }
func (e *EMA) Value() float64 { return e.s.value }
func (e *EMA) Ready() bool { return e.s.ready() }
func (e *EMA) Clone() Indicator {
	cp := *e
	return &cp
}

// SMMA is Wilder's smoothed moving average, k = 1/period.
type SMMA struct{ s smoother }

func NewSMMA(period int) *SMMA {
	return &SMMA{s: newSmoother(period, 1/float64(period))}
}

func (m *SMMA) Kind() Kind { return KindSMMA }
func (m *SMMA) Update(x float64) { m.s.add(x) }
func (m *SMMA) Value() float64 { return m.s.value }
func (m *SMMA) Ready() bool { return m.s.ready() }
func (m *SMMA) Clone() Indicator {
	cp := *m
	return &cp
}
