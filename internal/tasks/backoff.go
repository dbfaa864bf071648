package tasks

import "time"

// Backoff returns the delay before retry number attempt (1-based): the base
// doubled per prior attempt, capped. Attempt values below one are treated as
// one.
func Backoff(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
