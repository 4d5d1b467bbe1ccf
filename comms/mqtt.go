package comms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fantastic4/urov/onboard/drive"
	"github.com/sirupsen/logrus"
)

const (
	MQTT_CONNECT_TIMEOUT = 5 * time.Second
	MQTT_PUBLISH_TIMEOUT = 5 * time.Second
	MQTT_PUBLISH_QOS     = 0
	MQTT_SUBSCRIBE_QOS   = 1
)

// MQTTBridge connects the vehicle to the rig broker. The ranging board
// publishes the obstacle flag on its topic; the bridge feeds that into
// the drive interlock and publishes state snapshots back out for shore
// logging.
type MQTTBridge struct {
	client    mqtt.Client
	interlock *drive.Interlock
	log       *logrus.Entry

	obstacleTopic  string
	telemetryTopic string
}

// NewMQTTBridge connects to the broker and subscribes to the obstacle
// topic. A broker that is down is an error the caller may treat as non
// fatal; the vehicle drives fine without shore telemetry.
func NewMQTTBridge(broker, clientID, obstacleTopic, telemetryTopic string, interlock *drive.Interlock, log *logrus.Entry) (*MQTTBridge, error) {
	b := &MQTTBridge{
		interlock:      interlock,
		log:            log,
		obstacleTopic:  obstacleTopic,
		telemetryTopic: telemetryTopic,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	if !token.WaitTimeout(MQTT_CONNECT_TIMEOUT) {
		b.client.Disconnect(0)
		return nil, fmt.Errorf("timed out connecting to mqtt broker %s", broker)
	}
	if token.Error() != nil {
		return nil, token.Error()
	}

	return b, nil
}

func (b *MQTTBridge) onConnect(client mqtt.Client) {
	b.log.WithField("topic", b.obstacleTopic).Info("mqtt connected, subscribing")
	if token := client.Subscribe(b.obstacleTopic, MQTT_SUBSCRIBE_QOS, b.handleObstacle); token.Wait() && token.Error() != nil {
		b.log.WithError(token.Error()).Error("unable to subscribe to obstacle topic")
	}
}

func (b *MQTTBridge) handleObstacle(_ mqtt.Client, msg mqtt.Message) {
	if err := b.applyObstacle(msg.Payload()); err != nil {
		b.log.WithError(err).WithField("payload", string(msg.Payload())).Warn("ignoring obstacle message")
	}
}

// applyObstacle parses a ranging payload and drives the interlock. The
// ranging board publishes "true"/"false"; "1"/"0" work too.
func (b *MQTTBridge) applyObstacle(data []byte) error {
	engaged, err := strconv.ParseBool(strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}

	if engaged != b.interlock.Engaged() {
		b.interlock.Set(engaged)
		if engaged {
			b.log.Warn("obstacle reported by ranging, motors held at idle")
		} else {
			b.log.Info("obstacle cleared by ranging")
		}
	}

	return nil
}

// PublishState sends a snapshot to the telemetry topic. Failures are
// logged, not returned; telemetry is best effort.
func (b *MQTTBridge) PublishState(state StatePayload) {
	payload, err := json.Marshal(state)
	if err != nil {
		b.log.WithError(err).Error("unable to marshal state payload")
		return
	}

	token := b.client.Publish(b.telemetryTopic, MQTT_PUBLISH_QOS, false, payload)
	go func() {
		if token.WaitTimeout(MQTT_PUBLISH_TIMEOUT) && token.Error() != nil {
			b.log.WithError(token.Error()).Warn("unable to publish state snapshot")
		}
	}()
}

// Close disconnects from the broker.
func (b *MQTTBridge) Close() {
	b.client.Disconnect(250)
}
