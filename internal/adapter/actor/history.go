package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/adapter/history"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/config"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	HISTORY_PRUNE_INTERVAL = time.Hour
	HISTORY_QUERY_TIMEOUT  = 5 * time.Second
	HISTORY_DEFAULT_LIMIT  = 100
	HISTORY_MAX_LIMIT      = 10000
)

type HistoryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	store          *history.Store
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	scheduler      *scheduler.TimerScheduler
	cancelPrune    scheduler.CancelFunc
	lastRecorded   map[uint32]time.Time
	logger         *zap.Logger
}

type pruneTick struct {
}

type historyWriteResult struct {
	Serial uint32
	Error  error
}

type historyPruneResult struct {
	Pruned int64
	Error  error
}

func NewHistoryActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *HistoryActor {
	act := &HistoryActor{
		config:       config,
		behavior:     actor.NewBehavior(),
		eventStream:  eventStream,
		lastRecorded: make(map[uint32]time.Time),
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_HISTORY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *HistoryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HistoryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("history@default started")
		state.start(ctx)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HISTORY,
			Healthy: state.store != nil,
			State:   fmt.Sprintf("meters=%d", len(state.lastRecorded)),
		})
	case domain.MeterReadingEvent:
		state.record(ctx, msg.Reading)
	case domain.GetReadingHistoryRequest:
		state.logger.Debug("history@default GetReadingHistoryRequest", zap.Uint32("serial", msg.Serial))
		state.query(ctx, msg)
	case pruneTick:
		state.prune(ctx)
	case historyWriteResult:
		if msg.Error != nil {
			state.logger.Error("history: could not record reading", zap.Uint32("serial", msg.Serial), zap.Error(msg.Error))
		}
	case historyPruneResult:
		if msg.Error != nil {
			state.logger.Error("history: prune failed", zap.Error(msg.Error))
		} else if msg.Pruned > 0 {
			state.logger.Info("history: pruned old readings", zap.Int64("count", msg.Pruned))
		}
	default:
		state.logger.Debug("history@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HistoryActor) start(ctx actor.Context) {
	store, err := history.Open(state.config.HistoryConfig.DBPath)
	if err != nil {
		panic(err)
	}
	state.store = store

	if state.eventStream != nil {
		state.eventStreamSub = actorutil.SubscribeToSelf(ctx, state.eventStream, func(evt any) bool {
			_, ok := evt.(domain.MeterReadingEvent)
			return ok
		})
	}

	if state.config.HistoryConfig.RetentionHours > 0 {
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.cancelPrune = state.scheduler.SendRepeatedly(time.Second, HISTORY_PRUNE_INTERVAL, ctx.Self(), pruneTick{})
	}
}

func (state *HistoryActor) stop() {
	if state.cancelPrune != nil {
		state.cancelPrune()
		state.cancelPrune = nil
	}
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.store != nil {
		if err := state.store.Close(); err != nil {
			state.logger.Warn("history: close failed", zap.Error(err))
		}
		state.store = nil
	}
}

// record samples readings so a meter gets at most one row per record interval
func (state *HistoryActor) record(ctx actor.Context, reading domain.MeterReading) {
	interval := time.Duration(state.config.HistoryConfig.RecordIntervalMillis) * time.Millisecond
	if last, ok := state.lastRecorded[reading.Serial]; ok && reading.ReceivedAt.Sub(last) < interval {
		return
	}
	state.lastRecorded[reading.Serial] = reading.ReceivedAt

	store := state.store
	record := domain.NewHistoryRecord(reading)
	actorutil.NewBackgroundTask(ctx, func() (*historyWriteResult, error) {
		err := store.Insert(context.Background(), record)
		return &historyWriteResult{Serial: record.Serial, Error: err}, nil
	}).WithTimeout(HISTORY_QUERY_TIMEOUT).
		Recover(func(err error) historyWriteResult {
			return historyWriteResult{Serial: record.Serial, Error: err}
		}).
		PipeTo(ctx.Self())
}

func (state *HistoryActor) query(ctx actor.Context, req domain.GetReadingHistoryRequest) {
	limit := req.Limit
	if limit <= 0 {
		limit = HISTORY_DEFAULT_LIMIT
	} else if limit > HISTORY_MAX_LIMIT {
		limit = HISTORY_MAX_LIMIT
	}

	store := state.store
	serial := req.Serial
	actorutil.NewBackgroundTask(ctx, func() (*domain.GetReadingHistoryResponse, error) {
		records, err := store.Latest(context.Background(), serial, limit)
		if err != nil {
			return nil, err
		}
		return &domain.GetReadingHistoryResponse{Records: records}, nil
	}).WithTimeout(HISTORY_QUERY_TIMEOUT).
		Recover(func(err error) domain.GetReadingHistoryResponse {
			return domain.GetReadingHistoryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		}).
		PipeTo(actorutil.ForRequest(req).ReplyTo(ctx))
}

func (state *HistoryActor) prune(ctx actor.Context) {
	now := time.Now()
	// entries older than the record interval no longer hold back a sample
	interval := time.Duration(state.config.HistoryConfig.RecordIntervalMillis) * time.Millisecond
	for serial, last := range state.lastRecorded {
		if now.Sub(last) >= interval {
			delete(state.lastRecorded, serial)
		}
	}

	store := state.store
	before := now.Add(-time.Duration(state.config.HistoryConfig.RetentionHours) * time.Hour)
	actorutil.NewBackgroundTask(ctx, func() (*historyPruneResult, error) {
		pruned, err := store.Prune(context.Background(), before)
		return &historyPruneResult{Pruned: pruned, Error: err}, nil
	}).Recover(func(err error) historyPruneResult {
		return historyPruneResult{Error: err}
	}).PipeTo(ctx.Self())
}
