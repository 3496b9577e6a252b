package stats

// RunningAverage is an online mean. Each Add folds one value in with
// mean += (v - mean) / n, so long streams of large rates never build up a
// sum that loses precision. The zero value is ready to use and reports 0.
//
// A RunningAverage is owned by a single reducer and is not safe for
// concurrent use.
type RunningAverage struct {
	count uint64
	mean  float64
}

// Add folds v into the mean and returns the new mean.
func (a *RunningAverage) Add(v float64) float64 {
	a.count++
	a.mean += (v - a.mean) / float64(a.count)
	return a.mean
}

func (a *RunningAverage) Average() float64 { return a.mean }

func (a *RunningAverage) Count() uint64 { return a.count }
