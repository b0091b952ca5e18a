package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/intellsearch/intell/internal/search"
)

// Answer computes an optional instant answer for a query: the current
// time for time questions, or the value of a simple arithmetic
// expression. Returns nil when the query is neither.
func Answer(term string, clock search.Clock) *search.InstantAnswer {
	lower := strings.ToLower(strings.TrimSpace(term))

	if isTimeQuery(lower) {
		now := clock.Now().UTC()
		return &search.InstantAnswer{
			Type:   "time",
			Answer: now.Format("15:04 UTC, Monday, January 2, 2006"),
			Label:  "Current time",
		}
	}

	if value, ok := evalArithmetic(lower); ok {
		return &search.InstantAnswer{
			Type:   "calculator",
			Answer: formatNumber(value),
			Label:  term,
		}
	}
	return nil
}

var timePhrases = []string{
	"what time is it", "current time", "time now", "what is the time",
}

func isTimeQuery(lower string) bool {
	for _, phrase := range timePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// evalArithmetic evaluates + - * / expressions with the usual
// precedence, no parentheses. Anything else is not an expression.
func evalArithmetic(expr string) (float64, bool) {
	tokens, ok := tokenizeExpr(expr)
	if !ok || len(tokens) < 3 || len(tokens)%2 == 0 {
		return 0, false
	}

	// First pass folds * and / into their left operand.
	values := []float64{}
	ops := []string{}
	current, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return 0, false
	}
	values = append(values, current)
	for i := 1; i < len(tokens); i += 2 {
		op := tokens[i]
		operand, err := strconv.ParseFloat(tokens[i+1], 64)
		if err != nil {
			return 0, false
		}
		switch op {
		case "*":
			values[len(values)-1] *= operand
		case "/":
			if operand == 0 {
				return 0, false
			}
			values[len(values)-1] /= operand
		case "+", "-":
			values = append(values, operand)
			ops = append(ops, op)
		default:
			return 0, false
		}
	}

	total := values[0]
	for i, op := range ops {
		if op == "+" {
			total += values[i+1]
		} else {
			total -= values[i+1]
		}
	}
	if math.IsInf(total, 0) || math.IsNaN(total) {
		return 0, false
	}
	return total, true
}

// tokenizeExpr splits an expression into numbers and operators,
// rejecting input containing anything else.
func tokenizeExpr(expr string) ([]string, bool) {
	expr = strings.TrimSpace(strings.TrimSuffix(expr, "="))
	var tokens []string
	var number strings.Builder
	flush := func() {
		if number.Len() > 0 {
			tokens = append(tokens, number.String())
			number.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			number.WriteRune(r)
		case r == '+' || r == '-' || r == '*' || r == '/':
			flush()
			tokens = append(tokens, string(r))
		case r == 'x': // "3 x 4"
			flush()
			tokens = append(tokens, "*")
		case r == ' ':
			flush()
		default:
			return nil, false
		}
	}
	flush()
	return tokens, true
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return fmt.Sprintf("%g", v)
}
