// Package metrics converts a difference analysis and elapsed time into speed figures.
package metrics

import (
	"errors"
	"math"
	"time"

	"github.com/verte-zerg/typestream/internal/model"
)

const charsPerWord = 5.0

// MinDuration is the interval floor applied when finalizing a session.
const MinDuration = time.Millisecond

// ErrInvalidInterval is returned when end is not after start.
var ErrInvalidInterval = errors.New("metrics: interval must be positive")

// Compute derives metrics for the interval [start, end].
func Compute(a model.DifferenceAnalysis, start, end time.Time) (model.Metrics, error) {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return model.Metrics{}, ErrInvalidInterval
	}
	return compute(a, elapsed), nil
}

// Finalize derives metrics like Compute but floors the interval at MinDuration.
func Finalize(a model.DifferenceAnalysis, start, end time.Time) model.Metrics {
	elapsed := end.Sub(start)
	if elapsed < MinDuration {
		elapsed = MinDuration
	}
	return compute(a, elapsed)
}

func compute(a model.DifferenceAnalysis, elapsed time.Duration) model.Metrics {
	minutes := float64(elapsed.Milliseconds()) / 60000.0
	if minutes <= 0 {
		minutes = float64(elapsed) / float64(time.Minute)
	}
	total := float64(a.CorrectCharacters + a.IncorrectCharacters)
	errorCount := float64(len(a.Errors))

	wpm := Round2((total / charsPerWord) / minutes)
	return model.Metrics{
		WPM:       wpm,
		NetWPM:    NetWPM(wpm, len(a.Errors), minutes),
		Accuracy:  Round2(a.Accuracy),
		Duration:  minutes,
		ErrorRate: Round2(errorCount / minutes),
	}
}

// NetWPM discounts wpm by one word per error per minute, never below zero.
func NetWPM(wpm float64, errorCount int, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	return Round2(math.Max(0, wpm-float64(errorCount)/minutes/charsPerWord))
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
