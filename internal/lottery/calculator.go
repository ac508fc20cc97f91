package lottery

// ConvertContribution はdeltaを端数に加算し、付与するエントリー数と新しい端数を返す。
// 端数は常に 0 <= rest < divisor を満たす。divisorが0以下の場合は1として扱う。
func ConvertContribution(remainder, delta, divisor int64) (entries, rest int64) {
	if divisor <= 0 {
		divisor = 1
	}
	if delta < 0 {
		delta = 0
	}
	if remainder < 0 {
		remainder = 0
	}

	// remainder+deltaはオーバーフローしうるので商と余りを別々に足す
	entries = remainder/divisor + delta/divisor
	rest = remainder%divisor + delta%divisor
	if rest >= divisor {
		entries++
		rest -= divisor
	}
	return entries, rest
}

// ComboDelta returns how much of a running total is new since lastTotal.
// Out-of-order totals clamp to zero.
func ComboDelta(lastTotal, runningTotal int64) int64 {
	if runningTotal <= lastTotal {
		return 0
	}
	return runningTotal - lastTotal
}
