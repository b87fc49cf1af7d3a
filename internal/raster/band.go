package raster

import (
	"github.com/rotisserie/eris"
)

// Band is a single grid of samples stored row-major.
type Band interface {
	DataType() DataType
	Len() int
	// Float returns sample i converted to float64.
	Float(i int) float64
	Clone() Band
	// CopyFrom copies the samples at the given pixel offsets from src.
	// src must have the same data type and length.
	CopyFrom(src Band, offsets []int) error
	// Data returns the backing slice, e.g. []uint16.
	Data() any
}

// Grid is the typed Band implementation.
type Grid[T Sample] struct {
	Pix []T
}

// NewGrid allocates a zeroed grid of n samples.
func NewGrid[T Sample](n int) *Grid[T] {
	return &Grid[T]{Pix: make([]T, n)}
}

// GridOf wraps an existing slice without copying it.
func GridOf[T Sample](pix []T) *Grid[T] {
	return &Grid[T]{Pix: pix}
}

// NewBand allocates a zeroed band of the given type.
func NewBand(dt DataType, n int) (Band, error) {
	switch dt {
	case Int8:
		return NewGrid[int8](n), nil
	case Uint8:
		return NewGrid[uint8](n), nil
	case Int16:
		return NewGrid[int16](n), nil
	case Uint16:
		return NewGrid[uint16](n), nil
	case Int32:
		return NewGrid[int32](n), nil
	case Uint32:
		return NewGrid[uint32](n), nil
	case Int64:
		return NewGrid[int64](n), nil
	case Uint64:
		return NewGrid[uint64](n), nil
	case Float32:
		return NewGrid[float32](n), nil
	case Float64:
		return NewGrid[float64](n), nil
	default:
		return nil, eris.Errorf("raster: cannot allocate band of type %s", dt)
	}
}

func (g *Grid[T]) DataType() DataType { return dataTypeOf[T]() }

func (g *Grid[T]) Len() int { return len(g.Pix) }

func (g *Grid[T]) Float(i int) float64 { return float64(g.Pix[i]) }

func (g *Grid[T]) Data() any { return g.Pix }

func (g *Grid[T]) Clone() Band {
	pix := make([]T, len(g.Pix))
	copy(pix, g.Pix)
	return &Grid[T]{Pix: pix}
}

func (g *Grid[T]) CopyFrom(src Band, offsets []int) error {
	s, ok := src.(*Grid[T])
	if !ok {
		return eris.Errorf("raster: band type mismatch: have %s, source is %s", g.DataType(), src.DataType())
	}
	if len(s.Pix) != len(g.Pix) {
		return eris.Errorf("raster: band length mismatch: have %d, source has %d", len(g.Pix), len(s.Pix))
	}
	for _, i := range offsets {
		g.Pix[i] = s.Pix[i]
	}
	return nil
}
