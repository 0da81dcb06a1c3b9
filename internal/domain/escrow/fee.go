package escrow

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
)

// ErrNonFiniteFee is returned when a policy evaluates to an infinite or NaN fee.
var ErrNonFiniteFee = errors.New("fee is not finite")

// FeePolicy computes the platform fee on an amount in minor units.
type FeePolicy interface {
	Fee(amount int64) (int64, error)
}

// PercentFee charges Rate of the amount, rounded half away from zero, never below Minimum.
type PercentFee struct {
	Rate    decimal.Decimal
	Minimum int64
}

func NewPercentFee(rate string, minimum int64) (*PercentFee, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(rate))
	if err != nil {
		return nil, fmt.Errorf("invalid fee rate %q: %w", rate, err)
	}
	return &PercentFee{Rate: d, Minimum: minimum}, nil
}

func (p *PercentFee) Fee(amount int64) (int64, error) {
	fee := decimal.NewFromInt(amount).Mul(p.Rate).Round(0).IntPart()
	if fee < p.Minimum {
		fee = p.Minimum
		if fee > amount {
			fee = amount
		}
	}
	return fee, nil
}

// ExpressionFee evaluates an arithmetic expression over the parameter "amount",
// for example "amount * 0.05 + 1000".
type ExpressionFee struct {
	source string
	expr   *govaluate.EvaluableExpression
}

func NewExpressionFee(expression string) (*ExpressionFee, error) {
	src := strings.TrimSpace(expression)
	if src == "" {
		return nil, errors.New("fee expression is empty")
	}
	expr, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return nil, fmt.Errorf("invalid fee expression: %w", err)
	}
	return &ExpressionFee{source: src, expr: expr}, nil
}

func (e *ExpressionFee) Fee(amount int64) (int64, error) {
	result, err := e.expr.Evaluate(map[string]interface{}{
		"amount": float64(amount),
	})
	if err != nil {
		return 0, err
	}
	v, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("fee expression %q did not evaluate to a number", e.source)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("fee expression %q at amount %d: %w", e.source, amount, ErrNonFiniteFee)
	}
	return decimal.NewFromFloat(v).Round(0).IntPart(), nil
}

func (e *ExpressionFee) String() string { return e.source }

// FlatFee charges a constant. Zero is a valid no-fee policy.
type FlatFee int64

func (f FlatFee) Fee(int64) (int64, error) { return int64(f), nil }
