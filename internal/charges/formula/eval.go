package formula

import "math"

type evaluator struct {
	src string
	ctx Context
}

func (n numberNode) eval(*evaluator) (float64, error) { return n.value, nil }

func (n nameNode) eval(e *evaluator) (float64, error) {
	if _, ok := e.ctx[n.name]; !ok {
		return 0, evalErrorf(e.src, "name '%s' is not defined", n.name)
	}
	return 0, evalErrorf(e.src, "'%s' must be used as %s.quantity or %s.total", n.name, n.name, n.name)
}

func (n fieldNode) eval(e *evaluator) (float64, error) {
	value, ok := e.ctx[n.name]
	if !ok {
		return 0, evalErrorf(e.src, "name '%s' is not defined", n.name)
	}
	result := value.Quantity
	if n.field != fieldQuantity {
		if value.Total == nil {
			return 0, evalErrorf(e.src, "'%s' has no total", n.name)
		}
		result = *value.Total
	}
	if !finite(result) {
		return 0, evalErrorf(e.src, "numeric overflow")
	}
	return result, nil
}

func (n unaryNode) eval(e *evaluator) (float64, error) {
	v, err := n.operand.eval(e)
	if err != nil {
		return 0, err
	}
	if n.op == tokMinus {
		return -v, nil
	}
	return v, nil
}

func (n binaryNode) eval(e *evaluator) (float64, error) {
	left, err := n.left.eval(e)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(e)
	if err != nil {
		return 0, err
	}

	var result float64
	switch n.op {
	case tokPlus:
		result = left + right
	case tokMinus:
		result = left - right
	case tokStar:
		result = left * right
	case tokSlash:
		if right == 0 {
			return 0, evalErrorf(e.src, "division by zero")
		}
		result = left / right
	}
	if !finite(result) {
		return 0, evalErrorf(e.src, "numeric overflow")
	}
	return result, nil
}

func finite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }
