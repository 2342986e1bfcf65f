package grading

import (
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Standing is the approval outcome of a grade value.
type Standing string

const (
	Approved Standing = "approved"
	Recovery Standing = "recovery"
	Failed   Standing = "failed"
	Ungraded Standing = "ungraded"
)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithApprovalThreshold sets the minimum value for Approved.
func WithApprovalThreshold(v decimal.Decimal) Option {
	return func(c *Classifier) {
		if v.IsPositive() {
			c.approval = v
		}
	}
}

// WithRecoveryThreshold sets the minimum value for Recovery.
func WithRecoveryThreshold(v decimal.Decimal) Option {
	return func(c *Classifier) {
		if !v.IsNegative() {
			c.recovery = v
		}
	}
}

// Classifier maps grade values to a Standing.
type Classifier struct {
	approval decimal.Decimal
	recovery decimal.Decimal
}

// NewClassifier creates a classifier using the school's default thresholds.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		approval: model.ApprovalThreshold,
		recovery: model.RecoveryThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recovery.GreaterThan(c.approval) {
		c.recovery = c.approval
	}
	return c
}

// Classify returns the standing of value; nil is Ungraded.
func (c *Classifier) Classify(value *decimal.Decimal) Standing {
	switch {
	case value == nil:
		return Ungraded
	case value.GreaterThanOrEqual(c.approval):
		return Approved
	case value.GreaterThanOrEqual(c.recovery):
		return Recovery
	default:
		return Failed
	}
}

// ClassifyAverage is Classify for an optional average.
func (c *Classifier) ClassifyAverage(avg decimal.NullDecimal) Standing {
	if !avg.Valid {
		return Ungraded
	}
	return c.Classify(&avg.Decimal)
}
