package actor

import (
	"testing"
	"time"

	adactor "github.com/Johanpmeert/SMA-multicast-decode/internal/adapter/actor"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/config"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/util"
	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestMaster(t *testing.T, cfg config.Config) (*actor.ActorSystem, *actor.PID) {
	as := actor.NewActorSystem()
	context := as.Root

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, nil, func() *adactor.MulticastActor {
			source, _ := sma_multicast.CreateTestTelegramSource()
			return adactor.NewMulticastActor(&cfg, source, logger)
		}, func(*eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	return as, pid
}

func TestMasterActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.HistoryConfig.Enable = true
	as, pid := spawnTestMaster(t, cfg)
	context := as.Root

	var readings []domain.MeterReading
	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetMeterReadingsRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		readings = res.(domain.GetMeterReadingsResponse).Readings
		return len(readings) == 2
	}, 5*time.Second, 50*time.Millisecond)

	require.Len(t, readings, 2)
	// ordered by serial
	assert.Equal(uint32(1900123456), readings[0].Serial)
	assert.Equal(uint32(3012345678), readings[1].Serial)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(healthResp.Healthy, "healthy is true: %s", healthResp.State)

	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetReadingHistoryRequest{Serial: 3012345678}, time.Second).Result()
		if err != nil {
			return false
		}
		resp := res.(domain.GetReadingHistoryResponse)
		return !resp.HasResponseError() && len(resp.Records) == 1 && resp.Records[0].Power3f == "-800.0"
	}, 5*time.Second, 50*time.Millisecond)

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterActorHistoryDisabled(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.Enable = false
	as, pid := spawnTestMaster(t, cfg)
	context := as.Root

	res, err := context.RequestFuture(pid, domain.GetReadingHistoryRequest{Serial: 1}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := res.(domain.GetReadingHistoryResponse)
	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrHistoryDisabled)

	res, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.ActorHealthResponse).Healthy)

	context.Stop(pid)

	as.Shutdown()
}
