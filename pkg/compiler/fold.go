package compiler

import (
	"math"
)

// wrapInt reproduces the two's-complement/modular overflow behavior C17
// mandates for arithmetic on a fixed-width integer type: signed overflow
// wraps (this subset treats it as well-defined, matching how the backend's
// registers behave) and unsigned overflow wraps by definition, via a plain
// truncating conversion to the target width's unsigned Go type.
func wrapInt(kind Kind, v uint64) uint64 {
	switch kind {
	case KInt:
		return uint64(uint32(v)) // sign recovered by the consumer via int32(uint32(v))
	case KUInt:
		return uint64(uint32(v))
	case KChar:
		return uint64(uint8(v))
	default: // KLong, KULong
		return v
	}
}

func asSigned(kind Kind, v uint64) int64 {
	switch kind {
	case KInt:
		return int64(int32(uint32(v)))
	case KChar:
		return int64(int8(uint8(v)))
	default:
		return int64(v)
	}
}

// evalConstant evaluates a constant-expression tree (built only from
// Constant, Cast, Unary, and Binary nodes -- the grammar this subset's
// static initializers and case labels allow) to a single ConstantValue.
func evalConstant(e Expr) (ConstantValue, error) {
	switch n := e.(type) {
	case *Constant:
		return n.Value, nil
	case *Cast:
		inner, err := evalConstant(n.Inner)
		if err != nil {
			return ConstantValue{}, err
		}
		return convertConstant(n.Target, inner), nil
	case *Unary:
		inner, err := evalConstant(n.Inner)
		if err != nil {
			return ConstantValue{}, err
		}
		return evalUnaryConstant(n.Op, inner), nil
	case *Binary:
		lhs, err := evalConstant(n.LHS)
		if err != nil {
			return ConstantValue{}, err
		}
		rhs, err := evalConstant(n.RHS)
		if err != nil {
			return ConstantValue{}, err
		}
		return evalBinaryConstant(n.Op, lhs, rhs)
	default:
		return ConstantValue{}, internalError("expression is not a compile-time constant")
	}
}

func convertConstant(target Type, v ConstantValue) ConstantValue {
	if target.Kind == KDouble {
		if v.Kind == KDouble {
			return v
		}
		if v.IsSigned() {
			return ConstantValue{Kind: KDouble, Float: float64(asSigned(v.Kind, v.Int))}
		}
		return ConstantValue{Kind: KDouble, Float: float64(v.Int)}
	}
	if v.Kind == KDouble {
		return ConstantValue{Kind: target.Kind, Int: wrapInt(target.Kind, uint64(int64(v.Float)))}
	}
	return ConstantValue{Kind: target.Kind, Int: wrapInt(target.Kind, v.Int)}
}

func (v ConstantValue) IsSigned() bool { return v.Type().IsSigned() }

func evalUnaryConstant(op TokenType, v ConstantValue) ConstantValue {
	if v.Kind == KDouble {
		switch op {
		case MINUS:
			return ConstantValue{Kind: KDouble, Float: -v.Float}
		case NOT:
			b := uint64(0)
			if v.Float == 0 {
				b = 1
			}
			return ConstantValue{Kind: KInt, Int: b}
		}
		return v
	}
	switch op {
	case MINUS:
		return ConstantValue{Kind: v.Kind, Int: wrapInt(v.Kind, uint64(-asSigned(v.Kind, v.Int)))}
	case TILDE:
		return ConstantValue{Kind: v.Kind, Int: wrapInt(v.Kind, ^v.Int)}
	case NOT:
		b := uint64(0)
		if v.Int == 0 {
			b = 1
		}
		return ConstantValue{Kind: KInt, Int: b}
	default:
		return v
	}
}

func evalBinaryConstant(op TokenType, a, b ConstantValue) (ConstantValue, error) {
	common := commonType(a.Type(), b.Type())
	a, b = convertConstant(common, a), convertConstant(common, b)

	if common.Kind == KDouble {
		x, y := a.Float, b.Float
		switch op {
		case PLUS:
			return ConstantValue{Kind: KDouble, Float: x + y}, nil
		case MINUS:
			return ConstantValue{Kind: KDouble, Float: x - y}, nil
		case STAR:
			return ConstantValue{Kind: KDouble, Float: x * y}, nil
		case SLASH:
			return ConstantValue{Kind: KDouble, Float: x / y}, nil
		case EQUALS:
			return boolConst(x == y), nil
		case NOT_EQ:
			return boolConst(x != y), nil
		case LESS:
			return boolConst(x < y), nil
		case LESS_EQ:
			return boolConst(x <= y), nil
		case GREATER:
			return boolConst(x > y), nil
		case GREATER_EQ:
			return boolConst(x >= y), nil
		default:
			return ConstantValue{}, internalError("operator not valid on floating constants")
		}
	}

	if !common.IsSigned() {
		x, y := a.Int, b.Int
		switch op {
		case PLUS:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x + y)}, nil
		case MINUS:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x - y)}, nil
		case STAR:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x * y)}, nil
		case SLASH:
			if y == 0 {
				return ConstantValue{}, semanticError("division by zero in constant expression")
			}
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x / y)}, nil
		case PERCENT:
			if y == 0 {
				return ConstantValue{}, semanticError("division by zero in constant expression")
			}
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x % y)}, nil
		case AMP:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x & y)}, nil
		case PIPE:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x | y)}, nil
		case CARET:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x ^ y)}, nil
		case SHL:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x << y)}, nil
		case SHR:
			return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, x >> y)}, nil
		case EQUALS:
			return boolConst(x == y), nil
		case NOT_EQ:
			return boolConst(x != y), nil
		case LESS:
			return boolConst(x < y), nil
		case LESS_EQ:
			return boolConst(x <= y), nil
		case GREATER:
			return boolConst(x > y), nil
		case GREATER_EQ:
			return boolConst(x >= y), nil
		default:
			return ConstantValue{}, internalError("unsupported constant operator %s", op)
		}
	}

	x, y := asSigned(common.Kind, a.Int), asSigned(common.Kind, b.Int)
	switch op {
	case PLUS:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x + y))}, nil
	case MINUS:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x - y))}, nil
	case STAR:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x * y))}, nil
	case SLASH:
		if y == 0 {
			return ConstantValue{}, semanticError("division by zero in constant expression")
		}
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x / y))}, nil
	case PERCENT:
		if y == 0 {
			return ConstantValue{}, semanticError("division by zero in constant expression")
		}
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x % y))}, nil
	case AMP:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x & y))}, nil
	case PIPE:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x | y))}, nil
	case CARET:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x ^ y))}, nil
	case SHL:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x << uint64(y)))}, nil
	case SHR:
		return ConstantValue{Kind: common.Kind, Int: wrapInt(common.Kind, uint64(x >> uint64(y)))}, nil
	case EQUALS:
		return boolConst(x == y), nil
	case NOT_EQ:
		return boolConst(x != y), nil
	case LESS:
		return boolConst(x < y), nil
	case LESS_EQ:
		return boolConst(x <= y), nil
	case GREATER:
		return boolConst(x > y), nil
	case GREATER_EQ:
		return boolConst(x >= y), nil
	default:
		return ConstantValue{}, internalError("unsupported constant operator %s", op)
	}
}

func boolConst(b bool) ConstantValue {
	if b {
		return ConstantValue{Kind: KInt, Int: 1}
	}
	return ConstantValue{Kind: KInt, Int: 0}
}

// foldStaticInitializer flattens and folds a file-scope/static initializer
// into the sequence of ConstantValues the emitter writes into `.data`, one
// per scalar element (a scalar's own initializer folds to exactly one).
func foldStaticInitializer(ty Type, init Initializer) ([]ConstantValue, error) {
	switch n := init.(type) {
	case *SingleInit:
		v, err := evalConstant(n.Expr)
		if err != nil {
			return nil, err
		}
		return []ConstantValue{convertConstant(ty, v)}, nil
	case *CompoundInit:
		if !ty.IsArray() {
			return nil, typeError("brace initializer used for non-array type %s", ty)
		}
		var out []ConstantValue
		for _, elem := range n.Elements {
			vs, err := foldStaticInitializer(*ty.Elem, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		}
		for uint64(len(out)) < ty.Count {
			out = append(out, zeroValue(*ty.Elem))
		}
		return out, nil
	default:
		return nil, internalError("unrecognized initializer node %T", init)
	}
}

func zeroValue(ty Type) ConstantValue {
	if ty.Kind == KDouble {
		return ConstantValue{Kind: KDouble, Float: 0}
	}
	return ConstantValue{Kind: ty.Kind, Int: 0}
}

// asFloatBits reinterprets a double constant's bit pattern, used by the
// emitter to print an exact `.quad` initializer for `double` statics
// instead of a lossy decimal literal.
func asFloatBits(f float64) uint64 {
	return math.Float64bits(f)
}
