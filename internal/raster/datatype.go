package raster

import (
	"strings"

	"github.com/rotisserie/eris"
)

// DataType identifies the sample type shared by every band of a raster.
type DataType int

// Supported sample types.
const (
	Unknown DataType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var dataTypeNames = map[DataType]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

// String returns the lower-case type name, e.g. "uint16".
func (d DataType) String() string {
	if n, ok := dataTypeNames[d]; ok {
		return n
	}
	return "unknown"
}

// Size returns the width of one sample in bytes.
func (d DataType) Size() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// ParseDataType parses a type name as produced by String. "byte" is accepted
// as an alias for uint8.
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "byte" {
		return Uint8, nil
	}
	for dt, n := range dataTypeNames {
		if n == name {
			return dt, nil
		}
	}
	return Unknown, eris.Errorf("raster: unsupported data type %q", s)
}

// Sample is the set of Go types a band can hold.
type Sample interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

func dataTypeOf[T Sample]() DataType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Unknown
}
