package actor

import (
	"fmt"
	"slices"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/config"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/events"
	. "github.com/Johanpmeert/SMA-multicast-decode/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// MeterActor keeps the latest reading of every meter and publishes readings
// on the event stream, at most once per publish interval and meter.
type MeterActor struct {
	behavior    actor.Behavior
	config      *config.Config
	eventStream *eventstream.EventStream

	latest        map[uint32]domain.MeterReading
	lastPublished map[uint32]time.Time
	filtered      uint64
	dropped       uint64

	logger *zap.Logger
}

func NewMeterActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		config:        config,
		behavior:      actor.NewBehavior(),
		eventStream:   eventStream,
		latest:        make(map[uint32]domain.MeterReading),
		lastPublished: make(map[uint32]time.Time),
		logger:        ActorLogger(domain.ACTOR_ID_METER, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("meter@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER,
			Healthy: true,
			State:   fmt.Sprintf("meters=%d filtered=%d dropped=%d", len(state.latest), state.filtered, state.dropped),
		})
	case domain.TelegramDecoded:
		state.handleReading(ctx, msg.Reading)
	case domain.GetMeterReadingsRequest:
		state.logger.Debug("meter@default: GetMeterReadingsRequest")
		ForRequest(msg).Respond(ctx, domain.GetMeterReadingsResponse{
			Readings: state.readings(),
		})
	default:
		state.logger.Debug("meter@default: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) handleReading(ctx actor.Context, reading domain.MeterReading) {
	if !state.config.MonitorConfig.AcceptsSerial(reading.Serial) {
		state.filtered++
		state.logger.Debug("meter@default: ignored meter", zap.Uint32("serial", reading.Serial))
		return
	}

	if _, known := state.latest[reading.Serial]; !known {
		state.evictStale(reading.ReceivedAt)
		if maxMeters := state.config.MonitorConfig.MaxMeters; maxMeters > 0 && len(state.latest) >= maxMeters {
			state.dropped++
			state.logger.Warn("meter@default: too many meters, ignored reading",
				zap.Uint32("serial", reading.Serial),
				zap.String("source", reading.Source),
				zap.Int("max_meters", maxMeters))
			return
		}
		state.logger.Info("meter@default: new meter",
			zap.Uint32("serial", reading.Serial),
			zap.String("model", domain.MeterModel(reading.TelegramLength)),
			zap.String("source", reading.Source))
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), domain.MeterDiscovered{Reading: reading})
		}
	}
	state.latest[reading.Serial] = reading

	if state.config.MonitorConfig.LogReadings {
		state.logger.Info(fmt.Sprintf("Device n° %d reports: %s", reading.Serial, reading.Reading.String()))
	}

	if !state.shouldPublish(reading) {
		return
	}
	state.lastPublished[reading.Serial] = reading.ReceivedAt

	if state.eventStream == nil {
		return
	}
	state.eventStream.Publish(domain.MeterReadingEvent{Reading: reading})
	for _, ev := range events.MeterReadingToUpdateEvents(reading) {
		state.eventStream.Publish(ev)
	}
}

func (state *MeterActor) shouldPublish(reading domain.MeterReading) bool {
	interval := time.Duration(state.config.MonitorConfig.PublishIntervalMillis) * time.Millisecond
	last, ok := state.lastPublished[reading.Serial]
	return !ok || interval <= 0 || reading.ReceivedAt.Sub(last) >= interval
}

// evictStale forgets meters that sent nothing for the stale interval before now.
func (state *MeterActor) evictStale(now time.Time) {
	staleAfter := time.Duration(state.config.MonitorConfig.StaleAfterMillis) * time.Millisecond
	if staleAfter <= 0 {
		return
	}
	for serial, reading := range state.latest {
		if now.Sub(reading.ReceivedAt) >= staleAfter {
			state.logger.Info("meter@default: forgetting stale meter",
				zap.Uint32("serial", serial),
				zap.Time("last_seen", reading.ReceivedAt))
			delete(state.latest, serial)
			delete(state.lastPublished, serial)
		}
	}
}

// readings returns the latest reading of every meter ordered by serial.
func (state *MeterActor) readings() []domain.MeterReading {
	serials := make([]uint32, 0, len(state.latest))
	for serial := range state.latest {
		serials = append(serials, serial)
	}
	slices.Sort(serials)

	readings := make([]domain.MeterReading, 0, len(serials))
	for _, serial := range serials {
		readings = append(readings, state.latest[serial])
	}
	return readings
}
