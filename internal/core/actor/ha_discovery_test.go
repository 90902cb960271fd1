package actor

import (
	"testing"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mqttRecorder struct {
	requests chan domain.PublishDiscoveryRequest
}

func (p *mqttRecorder) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MQTT, Healthy: true})
	case domain.PublishDiscoveryRequest:
		p.requests <- msg
	}
}

func TestHADiscoveryActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()

	as := actor.NewActorSystem()
	context := as.Root

	recorder := &mqttRecorder{requests: make(chan domain.PublishDiscoveryRequest, 10)}
	mqttPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return recorder }))

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, mqttPID, zap.NewNop())
	}))

	reading := decodedAt(t, 1900123456, 12345, time.Now()).Reading
	// sent twice, announced once
	context.Send(pid, domain.MeterDiscovered{Reading: reading})
	context.Send(pid, domain.MeterDiscovered{Reading: reading})

	next := func() domain.PublishDiscoveryRequest {
		select {
		case req := <-recorder.requests:
			return req
		case <-time.After(2 * time.Second):
			require.FailNow(t, "timed out waiting for discovery")
		}
		return domain.PublishDiscoveryRequest{}
	}

	bridge := next()
	require.Len(t, bridge.Sensors, 1)
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, bridge.Sensors[0].Id)

	meter := next()
	require.Len(t, meter.Sensors, 7)
	assert.Equal("1900123456_power", meter.Sensors[0].Id)
	assert.Equal("sma_meter_1900123456", meter.Sensors[0].Device.Id)
	assert.Equal("Sunny Home Manager 2.0", meter.Sensors[0].Device.Model)
	assert.Equal(domain.BridgeDevice(cfg.MQTT.BaseTopic).Id, meter.Sensors[0].Device.ViaDevice)
	// later entities only reference the device
	assert.Empty(meter.Sensors[1].Device.Model)
	assert.Equal("sma_meter_1900123456", meter.Sensors[1].Device.Id)

	select {
	case req := <-recorder.requests:
		t.Errorf("unexpected discovery request with %d sensors", len(req.Sensors))
	case <-time.After(100 * time.Millisecond):
	}

	context.Stop(pid)
	as.Shutdown()
}
