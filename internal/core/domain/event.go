package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

// DecimalSensorUpdateEvent carries an exact value, rendered with a fixed
// number of decimals.
type DecimalSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    decimal.Decimal
	Decimals int32
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}
