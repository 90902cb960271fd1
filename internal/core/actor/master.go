package actor

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	adactor "github.com/Johanpmeert/SMA-multicast-decode/internal/adapter/actor"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/config"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	. "github.com/Johanpmeert/SMA-multicast-decode/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	masterStashLimit   = 1024
	healthCheckTimeout = 1 * time.Second
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type MulticastActorProvider func() *adactor.MulticastActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck     healthCheckResult
	eventStream            *eventstream.EventStream
	multicastActor         *actor.PID
	meterActor             *actor.PID
	mqttActor              *actor.PID
	haDiscoveryActor       *actor.PID
	historyActor           *actor.PID
	multicastActorProvider MulticastActorProvider
	mqttActorProvider      MQTTActorProvider
	logger                 *zap.Logger
}

type healthCheckResult struct {
	expected  map[string]bool
	healthy   map[string]bool
	received  int
	respondTo *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, eventStream *eventstream.EventStream, multicastActorProvider MulticastActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	if eventStream == nil {
		eventStream = &eventstream.EventStream{}
	}
	act := &MasterOfPuppetsActor{
		config:                 config,
		behavior:               actor.NewBehavior(),
		stash:                  &Stash{Limit: masterStashLimit},
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            eventStream,
		multicastActorProvider: multicastActorProvider,
		mqttActorProvider:      mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start Meter child
		meterActorPID, err := state.startMeterActor(ctx)
		if err != nil {
			panic(err)
		}
		state.meterActor = meterActorPID

		// start MQTT child
		if state.config.MQTT.Enable && state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID

			// start HA Discovery
			if state.config.MQTT.HADiscoveryEnable {
				haDiscPID, err := state.startHADiscoveryActor(ctx)
				if err != nil {
					panic(err)
				}
				state.haDiscoveryActor = haDiscPID
			}
		}

		// start History child
		if state.config.HistoryConfig.Enable {
			historyActorPID, err := state.startHistoryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.historyActor = historyActorPID
		}

		// start Multicast child last, its readings go to the meter actor
		multicastActorPID, err := state.startMulticastActor(ctx)
		if err != nil {
			panic(err)
		}
		state.multicastActor = multicastActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.children() {
			state.currentHealthCheck.expected[id] = true
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(healthCheckTimeout)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.TelegramDecoded:
		ctx.Send(state.meterActor, msg)
	case domain.MeterDiscovered:
		if state.haDiscoveryActor != nil {
			ctx.Send(state.haDiscoveryActor, msg)
		}
	case domain.GetMeterReadingsRequest:
		ctx.Forward(state.meterActor)
	case domain.GetReadingHistoryRequest:
		if state.historyActor == nil {
			ForRequest(msg).Respond(ctx, domain.GetReadingHistoryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: domain.ErrHistoryDisabled,
				},
			})
			return
		}
		ctx.Forward(state.historyActor)
	case *actor.Terminated:
		// if the receiver gives up, terminate
		if msg.Who.Id == ChildActorId(ctx.Self().Id, domain.ACTOR_ID_MULTICAST) {
			state.logger.Error("master@default multicast error")
			panic(errors.New("multicast terminated"))
		}
	default:
		state.logger.Debug("master@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(healthCheckTimeout)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	children := map[string]*actor.PID{
		domain.ACTOR_ID_MULTICAST: state.multicastActor,
		domain.ACTOR_ID_METER:     state.meterActor,
	}
	if state.mqttActor != nil {
		children[domain.ACTOR_ID_MQTT] = state.mqttActor
	}
	if state.haDiscoveryActor != nil {
		children[domain.ACTOR_ID_HA_DISCOVERY] = state.haDiscoveryActor
	}
	if state.historyActor != nil {
		children[domain.ACTOR_ID_HISTORY] = state.historyActor
	}
	return children
}

func (state *MasterOfPuppetsActor) startMulticastActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	multicastProps := actor.PropsFromProducer(func() actor.Actor {
		return state.multicastActorProvider()
	}, actor.WithSupervisor(supervisor))
	multicastActorPID, err := ctx.SpawnNamed(multicastProps, domain.ACTOR_ID_MULTICAST)
	if err != nil {
		return nil, err
	}

	return multicastActorPID, nil
}

func (state *MasterOfPuppetsActor) startMeterActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	meterProps := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(&state.config, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	meterActorPID, err := ctx.SpawnNamed(meterProps, domain.ACTOR_ID_METER)
	if err != nil {
		return nil, err
	}

	return meterActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startHistoryActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	historyProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewHistoryActor(&state.config, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	historyActorPID, err := ctx.SpawnNamed(historyProps, domain.ACTOR_ID_HISTORY)
	if err != nil {
		return nil, err
	}

	return historyActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.expected = make(map[string]bool)
	state.healthy = make(map[string]bool)
	state.received = 0
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) unhealthy() []string {
	var ids []string
	for id := range state.expected {
		if !state.healthy[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if !resp.Healthy {
		resp.State = fmt.Sprintf("unhealthy: %v", state.unhealthy())
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
