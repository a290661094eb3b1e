package audio

import "math"

// volumeToPower maps linear volume (0.0 to 1.0) to beep's base-2 exponent,
// where 1.0 is unity gain. Values at or near zero are handled by the
// Silent flag, not the exponent.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
