package compiler

import "fmt"

// Kind discriminates the tagged sum Type represents.
type Kind int

const (
	KInt Kind = iota
	KLong
	KUInt
	KULong
	KDouble
	KChar
	KVoid
	KFunction
	KPointer
	KArray
)

// Type is a tagged sum over the primitive, function, pointer, and array
// types this subset supports. Pointer and Array reference another Type
// through a pointer field rather than a deep copy, so a shared referenced
// type (e.g. the element type of `int**`'s inner `int*`) is not duplicated
// on construction. A Type is immutable once built by the constructors
// below.
type Type struct {
	Kind Kind

	// KFunction
	Params []Type
	Ret    *Type

	// KPointer / KArray
	Elem *Type

	// KArray
	Count uint64
}

func Int() Type    { return Type{Kind: KInt} }
func Long() Type   { return Type{Kind: KLong} }
func UInt() Type   { return Type{Kind: KUInt} }
func ULong() Type  { return Type{Kind: KULong} }
func Double() Type { return Type{Kind: KDouble} }
func CharTy() Type { return Type{Kind: KChar} }
func VoidTy() Type { return Type{Kind: KVoid} }

func PointerTo(elem Type) Type {
	e := elem
	return Type{Kind: KPointer, Elem: &e}
}

func ArrayOf(elem Type, count uint64) Type {
	e := elem
	return Type{Kind: KArray, Elem: &e, Count: count}
}

func FuncType(params []Type, ret Type) Type {
	r := ret
	return Type{Kind: KFunction, Params: params, Ret: &r}
}

// Size returns the size in bytes of a value of this type.
func (t Type) Size() int {
	switch t.Kind {
	case KInt, KUInt:
		return 4
	case KLong, KULong, KDouble, KPointer:
		return 8
	case KChar:
		return 1
	case KArray:
		return int(t.Count) * t.Elem.Size()
	case KFunction:
		return 0
	}
	return 0
}

// Align returns the required alignment in bytes of a value of this type.
func (t Type) Align() int {
	switch t.Kind {
	case KArray:
		return t.Elem.Align()
	default:
		return t.Size()
	}
}

func (t Type) IsSigned() bool {
	switch t.Kind {
	case KInt, KLong, KDouble, KChar:
		return true
	default:
		return false
	}
}

func (t Type) IsArithmetic() bool {
	switch t.Kind {
	case KInt, KLong, KUInt, KULong, KDouble, KChar:
		return true
	default:
		return false
	}
}

func (t Type) IsInteger() bool {
	return t.IsArithmetic() && t.Kind != KDouble
}

func (t Type) IsPointer() bool  { return t.Kind == KPointer }
func (t Type) IsArray() bool    { return t.Kind == KArray }
func (t Type) IsFunction() bool { return t.Kind == KFunction }
func (t Type) IsVoid() bool     { return t.Kind == KVoid }

// Equal reports structural equality: Pointer/Array compare their element
// types recursively, Function compares parameter lists and return type.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KPointer, KArray:
		if t.Kind == KArray && t.Count != o.Count {
			return false
		}
		return t.Elem.Equal(*o.Elem)
	case KFunction:
		if len(t.Params) != len(o.Params) || !t.Ret.Equal(*o.Ret) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KInt:
		return "int"
	case KLong:
		return "long"
	case KUInt:
		return "unsigned int"
	case KULong:
		return "unsigned long"
	case KDouble:
		return "double"
	case KChar:
		return "char"
	case KVoid:
		return "void"
	case KPointer:
		return fmt.Sprintf("%s*", t.Elem.String())
	case KArray:
		return fmt.Sprintf("%s[%d]", t.Elem.String(), t.Count)
	case KFunction:
		return fmt.Sprintf("%s(...)->%s", "fn", t.Ret.String())
	default:
		return "<invalid type>"
	}
}

// commonType implements the usual arithmetic conversions:
//
//	T == U            -> T
//	either is Double  -> Double
//	equal size        -> the unsigned one
//	otherwise         -> the larger one
func commonType(a, b Type) Type {
	if a.Equal(b) {
		return a
	}
	if a.Kind == KDouble || b.Kind == KDouble {
		return Double()
	}
	if a.Size() == b.Size() {
		if !a.IsSigned() {
			return a
		}
		return b
	}
	if a.Size() > b.Size() {
		return a
	}
	return b
}

// ConstantValue is the typed value of a folded compile-time constant. Kind
// mirrors the subset of Kind that can actually appear as a literal; Int
// holds the raw bit pattern for every integer variant (the sign/width is
// recovered from Kind), Float holds the IEEE-754 value for KDouble.
type ConstantValue struct {
	Kind  Kind
	Int   uint64
	Float float64
}

func (c ConstantValue) String() string {
	if c.Kind == KDouble {
		return fmt.Sprintf("%g", c.Float)
	}
	return fmt.Sprintf("%d", c.Int)
}

// Type reconstructs the static Type this constant carries.
func (c ConstantValue) Type() Type {
	switch c.Kind {
	case KLong:
		return Long()
	case KUInt:
		return UInt()
	case KULong:
		return ULong()
	case KDouble:
		return Double()
	case KChar:
		return CharTy()
	default:
		return Int()
	}
}

// IsZero reports whether the constant is the bit-pattern zero, used by the
// semantic/type-checking passes to validate null-pointer constants.
func (c ConstantValue) IsZero() bool {
	if c.Kind == KDouble {
		return c.Float == 0
	}
	return c.Int == 0
}
