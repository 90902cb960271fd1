package actor

import (
	"testing"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/util"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/util/actorutil"
	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testReading(t *testing.T, serial uint32, p3f int32, at time.Time) domain.MeterReading {
	reading, err := sma_multicast.DecodeTelegram(sma_multicast.BuildTelegram(serial, p3f, 0, 0, 0))
	require.NoError(t, err)
	return domain.MeterReading{
		Reading:        *reading,
		Source:         "192.168.1.50",
		ReceivedAt:     at,
		TelegramLength: sma_multicast.HOME_MANAGER_TELEGRAM_LENGTH,
	}
}

func TestHistoryActorRecordsAndQueries(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.HistoryConfig.Enable = true
	cfg.HistoryConfig.RecordIntervalMillis = 60000

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	es := &eventstream.EventStream{}

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewHistoryActor(&cfg, es, logger) }))

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.True(result.(domain.ActorHealthResponse).Healthy)

	base := time.Now()
	// second one falls inside the record interval
	es.Publish(domain.MeterReadingEvent{Reading: testReading(t, 1900123456, 12345, base)})
	es.Publish(domain.MeterReadingEvent{Reading: testReading(t, 1900123456, 100, base.Add(time.Second))})
	es.Publish(domain.MeterReadingEvent{Reading: testReading(t, 1900123456, -8000, base.Add(time.Minute))})
	es.Publish(domain.MeterReadingEvent{Reading: testReading(t, 3012345678, 5, base)})

	var records []domain.HistoryRecord
	assert.Eventually(func() bool {
		result, err := context.RequestFuture(pid, domain.GetReadingHistoryRequest{Serial: 1900123456}, 2*time.Second).Result()
		if err != nil {
			return false
		}
		resp := result.(domain.GetReadingHistoryResponse)
		records = resp.Records
		return !resp.HasResponseError() && len(records) == 2
	}, 2*time.Second, 20*time.Millisecond)

	require.Len(t, records, 2)
	assert.Equal("-800.0", records[0].Power3f)
	assert.Equal("1234.5", records[1].Power3f)

	result, err = context.RequestFuture(pid, domain.GetReadingHistoryRequest{Serial: 1900123456, Limit: 1}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.Len(result.(domain.GetReadingHistoryResponse).Records, 1)

	context.Stop(pid)
	as.Shutdown()
}

func TestHistoryActorForgetsIdleMeters(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.HistoryConfig.Enable = true
	cfg.HistoryConfig.RecordIntervalMillis = 1000

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	es := &eventstream.EventStream{}

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewHistoryActor(&cfg, es, logger) }))

	healthState := func() string {
		result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
		require.NoError(t, err)
		return result.(domain.ActorHealthResponse).State
	}

	now := time.Now()
	es.Publish(domain.MeterReadingEvent{Reading: testReading(t, 1900123456, 12345, now.Add(-5*time.Second))})
	es.Publish(domain.MeterReadingEvent{Reading: testReading(t, 3012345678, 5, now.Add(time.Hour))})
	assert.Eventually(t, func() bool { return healthState() == "meters=2" }, 2*time.Second, 20*time.Millisecond)

	context.Send(pid, pruneTick{})
	assert.Eventually(t, func() bool { return healthState() == "meters=1" }, 2*time.Second, 20*time.Millisecond)

	context.Stop(pid)
	as.Shutdown()
}
