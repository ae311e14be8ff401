package indicator

// RSI is the relative strength index with Wilder smoothing of the average
// gain and loss. The averages are seeded with the mean of the first period
// deltas, so the first value arrives with input period+1.
type RSI struct {
	gain, loss smoother
	prev       float64
	started    bool
}

func NewRSI(period int) *RSI {
	return &RSI{
		gain: newSmoother(period, 1/float64(period)),
		loss: newSmoother(period, 1/float64(period)),
	}
}

func (r *RSI) Kind() Kind { return KindRSI }

func (r *RSI) Update(x float64) {
	if !r.started {
		r.prev, r.started = x, true
		return
	}
	d := x - r.prev
	r.prev = x
	r.gain.add(max(d, 0))
	r.loss.add(max(-d, 0))
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	return rsiValue(r.gain.value, r.loss.value)
}

func (r *RSI) Ready() bool { return r.gain.ready() }

func (r *RSI) Clone() Indicator {
	cp := *r
	return &cp
}

// rsiValue maps the averages to 0..100; no losses reads as 100.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
