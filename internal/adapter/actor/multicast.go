package actor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/config"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/util/actorutil"
	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

type MulticastActor struct {
	config    *config.Config
	behavior  actor.Behavior
	source    sma_multicast.TelegramSource
	scheduler *scheduler.TimerScheduler

	cancelDiscovery scheduler.CancelFunc
	cancelReceive   context.CancelFunc
	stats           TelegramStats

	logger *zap.Logger
}

type TelegramStats struct {
	Received  uint64
	Decoded   uint64
	TooShort  uint64
	Truncated uint64
	LastSeen  time.Time
}

func (s TelegramStats) String() string {
	return fmt.Sprintf("received=%d decoded=%d too_short=%d truncated=%d",
		s.Received, s.Decoded, s.TooShort, s.Truncated)
}

type discoveryTick struct {
}

type datagramReceived struct {
	datagram *sma_multicast.Datagram
}

type receiveFailed struct {
	Error error
}

func NewMulticastActor(config *config.Config, source sma_multicast.TelegramSource, logger *zap.Logger) *MulticastActor {
	act := &MulticastActor{
		config:   config,
		source:   source,
		behavior: actor.NewBehavior(),
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MULTICAST, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *MulticastActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MulticastActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("multicast@default started")
		state.start(ctx)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("multicast@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MULTICAST,
			Healthy: state.cancelReceive != nil,
			State:   state.stats.String(),
		})
	case discoveryTick:
		state.sendDiscovery()
	case datagramReceived:
		state.handleDatagram(ctx, msg.datagram)
	case receiveFailed:
		// stop actor and let supervisor decide
		state.logger.Error("multicast@default receive failed", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("multicast@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MulticastActor) start(ctx actor.Context) {
	if err := state.source.Open(); err != nil {
		panic(err)
	}

	if state.config.Multicast.SendDiscovery {
		state.sendDiscovery()
		if interval := state.config.Multicast.DiscoveryIntervalMillis; interval > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			d := time.Duration(interval) * time.Millisecond
			state.cancelDiscovery = state.scheduler.SendRepeatedly(d, d, ctx.Self(), discoveryTick{})
		}
	}

	receiveCtx, cancel := context.WithCancel(context.Background())
	state.cancelReceive = cancel
	go receiveLoop(receiveCtx, state.source, ctx.ActorSystem().Root, ctx.Self())
}

func (state *MulticastActor) stop() {
	if state.cancelDiscovery != nil {
		state.cancelDiscovery()
		state.cancelDiscovery = nil
	}
	if state.cancelReceive != nil {
		state.cancelReceive()
		state.cancelReceive = nil
	}
	if err := state.source.Close(); err != nil {
		state.logger.Warn("multicast: close failed", zap.Error(err))
	}
}

func (state *MulticastActor) sendDiscovery() {
	if err := state.source.SendDiscovery(); err != nil {
		state.logger.Warn("multicast: could not send discovery", zap.Error(err))
	}
}

func (state *MulticastActor) handleDatagram(ctx actor.Context, datagram *sma_multicast.Datagram) {
	state.stats.Received++

	reading, err := sma_multicast.DecodeTelegram(datagram.Data)
	switch {
	case errors.Is(err, sma_multicast.ErrTooShort):
		// other traffic on the same group
		state.stats.TooShort++
		state.logger.Debug("multicast: discarded datagram", zap.Int("length", len(datagram.Data)), zap.String("source", sourceAddress(datagram.Source)))
		return
	case errors.Is(err, sma_multicast.ErrTruncatedField):
		state.stats.Truncated++
		state.logger.Warn("multicast: discarded malformed telegram", zap.Error(err), zap.String("source", sourceAddress(datagram.Source)))
		return
	case err != nil:
		state.logger.Error("multicast: decode failed", zap.Error(err))
		return
	}

	state.stats.Decoded++
	state.stats.LastSeen = datagram.ReceivedAt

	ctx.Send(ctx.Parent(), domain.TelegramDecoded{
		Reading: domain.MeterReading{
			Reading:        *reading,
			Source:         sourceAddress(datagram.Source),
			ReceivedAt:     datagram.ReceivedAt,
			TelegramLength: len(datagram.Data),
		},
	})
}

func receiveLoop(ctx context.Context, source sma_multicast.TelegramSource, root *actor.RootContext, self *actor.PID) {
	for {
		datagram, err := source.ReadTelegram(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			root.Send(self, receiveFailed{Error: err})
			return
		}
		root.Send(self, datagramReceived{datagram: datagram})
	}
}

func sourceAddress(addr net.Addr) string {
	switch a := addr.(type) {
	case nil:
		return ""
	case *net.UDPAddr:
		return a.IP.String()
	default:
		return a.String()
	}
}

func MulticastListenerConfig(cfg config.MulticastConfig) sma_multicast.ListenerConfig {
	return sma_multicast.ListenerConfig{
		Group:          cfg.Group,
		Port:           cfg.Port,
		Interface:      cfg.Interface,
		LocalAddress:   cfg.LocalAddress,
		ReadBufferSize: cfg.ReadBufferSize,
	}
}
