package coordinator

import (
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/harmaja/presence-engine/internal/engine"
	"github.com/harmaja/presence-engine/pkg/config"
)

// sleepWindowFunc builds the predicate that tells the decay model when
// the sleeping half-life applies. Mode "fixed" uses wall-clock hours;
// mode "sun" spans sunset to sunrise at the configured coordinates.
func sleepWindowFunc(sw config.SleepWindowConfig, lat, lon float64, loc *time.Location) engine.SleepWindowFunc {
	switch sw.Mode {
	case "sun":
		return func(t time.Time) bool {
			times := suncalc.GetTimes(t, lat, lon)
			sunrise := times[suncalc.Sunrise].Value
			sunset := times[suncalc.Sunset].Value
			return t.Before(sunrise) || t.After(sunset)
		}
	case "fixed":
		start, end := sw.StartHour, sw.EndHour
		return func(t time.Time) bool {
			h := t.In(loc).Hour()
			if start == end {
				return false
			}
			if start < end {
				return h >= start && h < end
			}
			// Window wraps midnight, e.g. 22 to 7.
			return h >= start || h < end
		}
	default:
		return nil
	}
}
