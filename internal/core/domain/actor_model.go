package domain

import (
	"errors"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MULTICAST    = "multicast"
	ACTOR_ID_METER        = "meter"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_HISTORY      = "history"
)

var ErrHistoryDisabled = errors.New("reading history is disabled")

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// MeterReading is a decoded telegram together with where and when it was
// received.
type MeterReading struct {
	sma_multicast.Reading
	Source         string
	ReceivedAt     time.Time
	TelegramLength int
}

// Sent by the multicast actor to its parent for every decoded telegram
type TelegramDecoded struct {
	Reading MeterReading
}

// Published on the event stream by the meter actor for every accepted reading
type MeterReadingEvent struct {
	Reading MeterReading
}

// Sent by the meter actor to its parent the first time a serial is seen
type MeterDiscovered struct {
	Reading MeterReading
}

type GetMeterReadingsRequest struct {
	ActorRequestMixIn
}

type GetMeterReadingsResponse struct {
	ActorResponseMixIn
	Readings []MeterReading
}

type HistoryRecord struct {
	Serial     uint32    `json:"serial"`
	RecordedAt time.Time `json:"recorded_at"`
	Power3f    string    `json:"power"`
	PowerL1    string    `json:"power_l1"`
	PowerL2    string    `json:"power_l2"`
	PowerL3    string    `json:"power_l3"`
}

type GetReadingHistoryRequest struct {
	ActorRequestMixIn
	Serial uint32
	Limit  int
}

type GetReadingHistoryResponse struct {
	ActorResponseMixIn
	Records []HistoryRecord
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
