package buffer

import (
	"reflect"

	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Element is the set of types a BufferManager can store.
// Float16 is admitted through its uint16 underlying type.
type Element interface {
	constraints.Integer | constraints.Float
}

// Float16 is an IEEE 754 half-precision value stored as its raw bit pattern.
type Float16 uint16

// NewFloat16 converts f to the nearest half-precision value.
func NewFloat16(f float32) Float16 {
	return Float16(float16.Fromfloat32(f).Bits())
}

// Float32 widens the half-precision value back to float32.
func (h Float16) Float32() float32 {
	return float16.Frombits(uint16(h)).Float32()
}

// ToFloat16s converts a float32 slice to half precision.
//
// Parameters:
//   - src: the values to convert
//
// Returns:
//   - []Float16: the converted values, same length as src
func ToFloat16s(src []float32) []Float16 {
	out := make([]Float16, len(src))
	for i, f := range src {
		out[i] = NewFloat16(f)
	}
	return out
}

// ElementFormat classifies an element type by how GPU resources should interpret it.
type ElementFormat int

const (
	FormatUint ElementFormat = iota
	FormatSint
	FormatFloat
	FormatHalf
)

func (f ElementFormat) String() string {
	switch f {
	case FormatUint:
		return "uint"
	case FormatSint:
		return "sint"
	case FormatFloat:
		return "float"
	case FormatHalf:
		return "half"
	default:
		return "unknown"
	}
}

var float16Type = reflect.TypeFor[Float16]()

// FormatOf returns the ElementFormat of T.
func FormatOf[T Element]() ElementFormat {
	t := reflect.TypeFor[T]()
	if t == float16Type {
		return FormatHalf
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		return FormatFloat
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FormatSint
	default:
		return FormatUint
	}
}
