// Package dispatch feeds emergency overrides from an MQTT broker into
// the controller. Dispatch centers publish to dispatch/emergency/<lane>
// when an ambulance is routed through the intersection; each message
// becomes a manual override for that lane.
package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitoring"
)

const topicFilter = "dispatch/emergency/+"

// Overrider accepts emergency overrides; satisfied by the controller.
type Overrider interface {
	ForceEmergency(laneID int) error
}

// Listener subscribes to the dispatch topic and forwards overrides.
type Listener struct {
	client mqtt.Client
}

// Connect connects to the broker and subscribes. Startup failures are
// returned to the caller; once connected, the client reconnects and
// resubscribes on its own.
func Connect(brokerURL string, target Overrider) (*Listener, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("signal-dispatch-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetResumeSubs(true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("dispatch: broker connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if token := client.Subscribe(topicFilter, 1, handler(target)); token.Wait() && token.Error() != nil {
			monitoring.Logf("dispatch: subscribe failed: %v", token.Error())
			return
		}
		monitoring.Logf("dispatch: subscribed to %s", topicFilter)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", brokerURL, token.Error())
	}

	return &Listener{client: client}, nil
}

// handler parses the lane id from the topic's final segment and
// forwards the override. Malformed topics and invalid lanes are logged
// and dropped.
func handler(target Overrider) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		lane, err := laneFromTopic(msg.Topic())
		if err != nil {
			monitoring.Logf("dispatch: %v", err)
			return
		}
		if err := target.ForceEmergency(lane); err != nil {
			monitoring.Logf("dispatch: override for lane %d rejected: %v", lane, err)
			return
		}
		monitoring.Logf("dispatch: emergency override for lane %d", lane)
	}
}

func laneFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}
	lane, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("bad lane id in topic %q", topic)
	}
	return lane, nil
}

// Close disconnects from the broker, allowing in-flight work a short
// grace period.
func (l *Listener) Close() {
	l.client.Disconnect(250)
}
