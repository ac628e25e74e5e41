package booking

// CalculatePrice returns hourlyRate × duration in the rate's minor units.
// Partial units are truncated.
func CalculatePrice(hourlyRate int64, durationMinutes int) int64 {
	return hourlyRate * int64(durationMinutes) / 60
}
