package wellness

import (
	"time"

	"readiness/internal/day"
)

// Baseline holds trailing-window means. Nil means no sample in the window
// reported the metric.
type Baseline struct {
	Days            int
	Samples         int
	HRV             *float64
	RestingHR       *float64
	RespiratoryRate *float64
	SleepMinutes    *float64
	BedClock        *float64 // minutes after noon
	WakeClock       *float64 // minutes after midnight
}

// BedClock returns minutes after noon so bedtimes either side of midnight
// stay comparable
func BedClock(t time.Time, loc *time.Location) float64 {
	if loc != nil {
		t = t.In(loc)
	}
	m := t.Hour()*60 + t.Minute() - 12*60
	if m < 0 {
		m += 24 * 60
	}
	return float64(m)
}

// WakeClock returns minutes after midnight
func WakeClock(t time.Time, loc *time.Location) float64 {
	if loc != nil {
		t = t.In(loc)
	}
	return float64(t.Hour()*60 + t.Minute())
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

// ComputeBaselines averages the windowDays days before dayKey. The scored
// day itself is excluded.
func ComputeBaselines(history []DailySample, dayKey string, windowDays int, loc *time.Location) Baseline {
	first := day.Add(dayKey, -windowDays)

	var hrv, rhr, resp, sleep, bed, wake mean
	samples := 0
	for _, s := range history {
		if s.Date < first || s.Date >= dayKey {
			continue
		}
		samples++
		if s.HRV != nil {
			hrv.add(*s.HRV)
		}
		if s.RestingHR != nil {
			rhr.add(*s.RestingHR)
		}
		if s.RespiratoryRate != nil {
			resp.add(*s.RespiratoryRate)
		}
		if s.HasSleep() {
			sleep.add(s.SleepDuration.Minutes())
		}
		if s.BedTime != nil {
			bed.add(BedClock(*s.BedTime, loc))
		}
		if s.WakeTime != nil {
			wake.add(WakeClock(*s.WakeTime, loc))
		}
	}

	return Baseline{
		Days:            windowDays,
		Samples:         samples,
		HRV:             hrv.value(),
		RestingHR:       rhr.value(),
		RespiratoryRate: resp.value(),
		SleepMinutes:    sleep.value(),
		BedClock:        bed.value(),
		WakeClock:       wake.value(),
	}
}
