package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pixoo/daemon/internal/log"
)

// MQTTConfig configures the real broker connection (spec.md §6
// "Message bus host/user/password").
type MQTTConfig struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string
	Username string
	Password string

	ConnectTimeout time.Duration
}

// MQTTBus is the production Bus implementation, backed by
// eclipse/paho.mqtt.golang. Subscriptions are demultiplexed locally so
// multiple logical subscribers can share one broker connection.
type MQTTBus struct {
	client mqtt.Client

	mu   sync.RWMutex
	subs map[*mqttSub]string
}

// NewMQTTBus connects to the configured broker and returns a ready Bus.
func NewMQTTBus(cfg MQTTConfig) (*MQTTBus, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	b := &MQTTBus{subs: make(map[*mqttSub]string)}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false).
		SetDefaultPublishHandler(b.dispatch)

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect timed out after %s", cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}

	// Subscribe once to the two accepted prefix families (spec.md §6);
	// local fan-out happens in dispatch via topic-filter matching.
	for _, filter := range []string{"pixoo/#", "/home/pixoo/#"} {
		t := b.client.Subscribe(filter, 0, b.dispatch)
		if !t.WaitTimeout(cfg.ConnectTimeout) {
			return nil, fmt.Errorf("mqtt: subscribe to %s timed out", filter)
		}
		if err := t.Error(); err != nil {
			return nil, fmt.Errorf("mqtt: subscribe to %s failed: %w", filter, err)
		}
	}

	return b, nil
}

func (b *MQTTBus) dispatch(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	b.mu.RLock()
	var targets []*mqttSub
	for s, filter := range b.subs {
		if TopicMatches(filter, topic) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	out := Message{Topic: topic, Payload: payload}
	for _, s := range targets {
		select {
		case s.ch <- out:
		default:
			log.WithComponent("bus.mqtt").Warn().Str("topic", topic).Msg("subscriber channel full, dropping message")
		}
	}
}

func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	token := b.client.Publish(topic, 0, false, payload)
	select {
	case <-waitToken(token):
	case <-ctx.Done():
		return ctx.Err()
	}
	return token.Error()
}

func (b *MQTTBus) Subscribe(_ context.Context, topicFilter string) (Subscriber, error) {
	s := &mqttSub{b: b, ch: make(chan Message, 64)}
	b.mu.Lock()
	b.subs[s] = topicFilter
	b.mu.Unlock()
	return s, nil
}

func (b *MQTTBus) Close() error {
	b.mu.Lock()
	for s := range b.subs {
		close(s.ch)
	}
	b.subs = make(map[*mqttSub]string)
	b.mu.Unlock()
	b.client.Disconnect(250)
	return nil
}

func waitToken(t mqtt.Token) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		t.Wait()
		close(done)
	}()
	return done
}

type mqttSub struct {
	b  *MQTTBus
	ch chan Message
}

func (s *mqttSub) C() <-chan Message { return s.ch }

func (s *mqttSub) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; ok {
		delete(s.b.subs, s)
		close(s.ch)
	}
	return nil
}

var _ Bus = (*MQTTBus)(nil)
