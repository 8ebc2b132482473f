package mqtt

import (
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/registry"
)

// fakeMessage implements pahomqtt.Message for handler tests; no broker needed.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

var _ pahomqtt.Message = (*fakeMessage)(nil)

func testSubscriber(t *testing.T) (*Subscriber, *engine.Engine) {
	t.Helper()
	eng := engine.New(registry.New(), nil, zerolog.Nop())
	sub := NewSubscriber(config.MQTTConfig{Topic: "tether/report"}, eng, zerolog.Nop())
	return sub, eng
}

func TestHandleReportMerges(t *testing.T) {
	sub, eng := testSubscriber(t)

	sub.handleReport(nil, &fakeMessage{
		topic:   "tether/report",
		payload: []byte(`{"receiver":"esp-01","objects":[{"address":"AA:BB","rssi":-55,"online":true}]}`),
	})

	if _, err := eng.FindBeacon("AA:BB"); err != nil {
		t.Errorf("beacon not merged from mqtt report: %v", err)
	}
}

func TestHandleReportDiscardsGarbage(t *testing.T) {
	sub, eng := testSubscriber(t)

	sub.handleReport(nil, &fakeMessage{topic: "tether/report", payload: []byte(`not json`)})
	sub.handleReport(nil, &fakeMessage{topic: "tether/report", payload: []byte(`{"objects":[]}`)})

	summary := eng.StatusSummary(0)
	if summary.Receivers != 0 || summary.Beacons != 0 {
		t.Error("garbage must not mutate the registry")
	}
}
