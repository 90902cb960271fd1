package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testReadingTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testReading(t *testing.T, serial uint32, p3f, l1, l2, l3 int32) domain.MeterReading {
	reading, err := sma_multicast.DecodeTelegram(sma_multicast.BuildTelegram(serial, p3f, l1, l2, l3))
	require.NoError(t, err)
	return domain.MeterReading{
		Reading:        *reading,
		Source:         "192.168.1.50",
		ReceivedAt:     testReadingTime,
		TelegramLength: sma_multicast.HOME_MANAGER_TELEGRAM_LENGTH,
	}
}

// answers like the master actor
type fakeMaster struct {
	readings []domain.MeterReading
	history  map[uint32][]domain.HistoryRecord
}

func (f *fakeMaster) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: true})
	case domain.GetMeterReadingsRequest:
		ctx.Respond(domain.GetMeterReadingsResponse{Readings: f.readings})
	case domain.GetReadingHistoryRequest:
		if f.history == nil {
			ctx.Respond(domain.GetReadingHistoryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrHistoryDisabled},
			})
			return
		}
		records := f.history[msg.Serial]
		if msg.Limit > 0 && len(records) > msg.Limit {
			records = records[:msg.Limit]
		}
		ctx.Respond(domain.GetReadingHistoryResponse{Records: records})
	}
}

func newTestServer(t *testing.T, master *fakeMaster) (*Server, *httptest.Server, *eventstream.EventStream) {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return master }))

	es := &eventstream.EventStream{}
	s := &Server{
		rootContext: as.Root,
		masterActor: pid,
		hub:         NewHub(es, zap.NewNop()),
		logger:      zap.NewNop(),
	}
	ts := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(ts.Close)
	t.Cleanup(s.hub.Close)
	return s, ts, es
}

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthCheckHandler(t *testing.T) {

	_, ts, _ := newTestServer(t, &fakeMaster{})

	status, body := get(t, ts.URL+"/healthcheck")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "health_check: OK", body)
}

func TestMetersHandler(t *testing.T) {

	assert := assert.New(t)

	_, ts, _ := newTestServer(t, &fakeMaster{
		readings: []domain.MeterReading{
			testReading(t, 1900123456, 12345, 4100, 4200, 4045),
			testReading(t, 3012345678, -8000, -2500, -2700, -2800),
		},
	})

	status, body := get(t, ts.URL+"/meters")
	assert.Equal(http.StatusOK, status)

	var meters []domain.MeterReadingJSON
	require.NoError(t, json.Unmarshal([]byte(body), &meters))
	require.Len(t, meters, 2)
	assert.Equal(uint32(1900123456), meters[0].Serial)
	assert.Equal("1234.5", meters[0].Power)
	assert.Equal("404.5", meters[0].PowerL3)
	assert.Equal("Sunny Home Manager 2.0", meters[0].Model)
	assert.Equal("-800.0", meters[1].Power)
	// decimal values are strings on the wire
	assert.True(strings.Contains(body, `"power":"-800.0"`))

	status, body = get(t, ts.URL+"/meters/3012345678")
	assert.Equal(http.StatusOK, status)
	assert.Contains(body, `"serial":3012345678`)

	status, _ = get(t, ts.URL+"/meters/42")
	assert.Equal(http.StatusNotFound, status)

	status, _ = get(t, ts.URL+"/meters/not-a-serial")
	assert.Equal(http.StatusBadRequest, status)

	// does not fit in 32 bits
	status, _ = get(t, ts.URL+"/meters/4294967296")
	assert.Equal(http.StatusBadRequest, status)
}

func TestMeterHistoryHandler(t *testing.T) {

	assert := assert.New(t)

	_, ts, _ := newTestServer(t, &fakeMaster{
		history: map[uint32][]domain.HistoryRecord{
			3012345678: {
				{Serial: 3012345678, RecordedAt: testReadingTime.Add(time.Minute), Power3f: "-750.5"},
				{Serial: 3012345678, RecordedAt: testReadingTime, Power3f: "-800.0"},
			},
		},
	})

	status, body := get(t, ts.URL+"/meters/3012345678/history?limit=1")
	assert.Equal(http.StatusOK, status)
	var records []domain.HistoryRecord
	require.NoError(t, json.Unmarshal([]byte(body), &records))
	require.Len(t, records, 1)
	assert.Equal("-750.5", records[0].Power3f)

	status, _ = get(t, ts.URL+"/meters/3012345678/history?limit=0")
	assert.Equal(http.StatusBadRequest, status)

	status, body = get(t, ts.URL+"/meters/1/history")
	assert.Equal(http.StatusOK, status)
	assert.Equal("[]", strings.TrimSpace(body))
}

func TestMeterHistoryHandlerDisabled(t *testing.T) {

	_, ts, _ := newTestServer(t, &fakeMaster{})

	status, _ := get(t, ts.URL+"/meters/3012345678/history")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWebSocketHandler(t *testing.T) {

	assert := assert.New(t)

	s, ts, es := newTestServer(t, &fakeMaster{
		readings: []domain.MeterReading{testReading(t, 1900123456, 12345, 4100, 4200, 4045)},
	})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// current readings on connect
	var msg domain.MeterReadingJSON
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(uint32(1900123456), msg.Serial)
	assert.Equal("1234.5", msg.Power)

	assert.Eventually(func() bool { return s.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	es.Publish(domain.MeterReadingEvent{Reading: testReading(t, 3012345678, -8000, -2500, -2700, -2800)})
	// other events are not forwarded
	es.Publish(domain.MeterDiscovered{})

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(uint32(3012345678), msg.Serial)
	assert.Equal("-250.0", msg.PowerL1)
}

// upgrades one connection and hands it over without reading from it
func upgradedConn(t *testing.T) *websocket.Conn {
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			conns <- conn
		}
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upgrade")
		return nil
	}
}

func TestHubDropsBrokenClients(t *testing.T) {

	assert := assert.New(t)

	hub := NewHub(nil, zap.NewNop())
	t.Cleanup(hub.Close)

	conn := upgradedConn(t)
	hub.Add(conn)
	assert.Equal(1, hub.Len())

	// closed underneath the hub, the next broadcast drops it
	conn.Close()
	hub.Offer(testReading(t, 1900123456, 12345, 4100, 4200, 4045))
	assert.Eventually(func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)

	// already gone
	assert.False(hub.Remove(conn))
}

func TestHubRemove(t *testing.T) {

	assert := assert.New(t)

	s, ts, _ := newTestServer(t, &fakeMaster{})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(func() bool { return s.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	s.hub.mu.RLock()
	var serverConn *websocket.Conn
	for c := range s.hub.clients {
		serverConn = c
	}
	s.hub.mu.RUnlock()

	assert.True(s.hub.Remove(serverConn))
	assert.False(s.hub.Remove(serverConn))
	assert.Equal(0, s.hub.Len())

	// the client sees the connection go away
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(err)
}
