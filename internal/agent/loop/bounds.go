package loop

import "fmt"

const DefaultMaxSteps = 8

// normalizeMaxSteps returns a sane default when the provided value is invalid.
func normalizeMaxSteps(n int) int {
	if n <= 0 {
		return DefaultMaxSteps
	}
	return n
}

// wrapUpNotice is appended before the last permitted model call.
func wrapUpNotice(maxSteps int) string {
	return fmt.Sprintf(
		"SYSTEM NOTICE: You have reached the maximum number of reasoning steps (%d). "+
			"Do not call any more tools. Answer now using the information you have already gathered, "+
			"and mention anything you could not complete.",
		maxSteps,
	)
}
