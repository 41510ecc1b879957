package domain

import (
	"github.com/shopspring/decimal"
)

// VolumeUnit is a multiple of the smallest tradeable amount.
type VolumeUnit int64

const (
	Base     VolumeUnit = 1
	NanoLot  VolumeUnit = 100
	MicroLot VolumeUnit = 1_000
	MiniLot  VolumeUnit = 10_000
	Lot      VolumeUnit = 100_000
)

// Volume is an amount of tradeable volume in base units.
type Volume int64

// NewVolume converts n of unit into base units.
func NewVolume(n int64, unit VolumeUnit) Volume {
	return Volume(n * int64(unit))
}

// Base returns the volume in base units.
func (v Volume) Base() int64 {
	return int64(v)
}

// Lots returns the volume in lots.
func (v Volume) Lots() decimal.Decimal {
	return decimal.New(int64(v), -5)
}

// RoundDown truncates v to a multiple of step. A non-positive step leaves v
// unchanged.
func (v Volume) RoundDown(step Volume) Volume {
	if step <= 0 {
		return v
	}

	return v - v%step
}

func (v Volume) String() string {
	return v.Lots().String() + " LOT"
}

// VolumeRequest carries what a session knows when it asks for volume for a
// single trade.
type VolumeRequest struct {
	Symbol            ForexSymbol
	CurrentPrice      Price
	PipLostOnStopLoss Price
	AllowedStepSize   Volume
}
