// Package domain holds anomaly detection results and run history.
package domain

import (
	"strconv"
	"time"
)

// NormalClass is the classifier label of normal behavior.
const NormalClass = 0

// Result is the score of one user for a detection window.
type Result struct {
	PredClass int     `json:"pred_class"`
	PTop      float64 `json:"p_top"`
	PAnomaly  float64 `json:"p_anomaly"`
	// Proba maps class label to probability.
	Proba map[string]float64 `json:"proba"`
}

// Anomalous reports whether the predicted class is not the normal class.
func (r Result) Anomalous() bool {
	return r.PredClass != NormalClass
}

// NewResult builds a Result from the predicted class and the probability row aligned with classes.
func NewResult(pred int, classes []int, proba []float64) Result {
	r := Result{PredClass: pred, PAnomaly: 1, Proba: make(map[string]float64, len(classes))}
	for i, c := range classes {
		if i >= len(proba) {
			break
		}
		p := proba[i]
		r.Proba[strconv.Itoa(c)] = p
		if p > r.PTop {
			r.PTop = p
		}
		if c == NormalClass {
			r.PAnomaly = 1 - p
		}
	}
	return r
}

// Results maps user id to result.
type Results map[string]Result

// History is one persisted detection run.
type History struct {
	ID             int64
	OrganizationID string
	StartDate      time.Time
	EndDate        time.Time
	RunTimestamp   time.Time
	Results        Results
}

// UserCount is the number of anomalous users of one history entry.
type UserCount struct {
	HistoryID      int64     `json:"history_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	RunTimestamp   time.Time `json:"run_timestamp"`
	AnomalousUsers int       `json:"anomalous_users"`
}
