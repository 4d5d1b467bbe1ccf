package calcs

// CToF converts a temperature in degrees Celsius to Fahrenheit.
func CToF(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// MilliCToC converts a raw milli-degree sensor value to degrees Celsius.
func MilliCToC(raw int) float64 {
	return float64(raw) / 1000.0
}

// Translate maps value from the range [leftMin, leftMax] onto the range
// [rightMin, rightMax].
func Translate(value, leftMin, leftMax, rightMin, rightMax float64) float64 {
	leftSpan := leftMax - leftMin
	rightSpan := rightMax - rightMin

	// convert the left range into a 0-1 fraction
	scaled := (value - leftMin) / leftSpan

	return rightMin + scaled*rightSpan
}

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
