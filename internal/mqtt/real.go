package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topics Topics

	mu      sync.Mutex
	handler CommandHandler
}

// NewRealPublisher connects to the configured broker. The broker keeps a
// retained "lost" on the $state topic if the connection drops.
func NewRealPublisher(cfg config.MQTT) (*RealPublisher, error) {
	p := &RealPublisher{topics: Topics{Prefix: cfg.TopicPrefix}}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(p.topics.State(), StateLost, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	log.Info().Str("broker", cfg.Broker).Str("prefix", cfg.TopicPrefix).Msg("MQTT connected")
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	c.Publish(p.topics.State(), 1, true, StateReady)

	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		p.subscribe(c, h)
	}
}

// Subscribe routes every set topic to h, now and after each reconnect.
func (p *RealPublisher) Subscribe(h CommandHandler) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	return p.subscribe(p.client, h)
}

func (p *RealPublisher) subscribe(c paho.Client, h CommandHandler) error {
	filter := p.topics.CommandFilter()
	token := c.Subscribe(filter, 1, func(_ paho.Client, msg paho.Message) {
		err := HandleCommand(h, p.topics, msg.Topic(), msg.Payload())
		if err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic()).Str("payload", string(msg.Payload())).Msg("MQTT command rejected")
			return
		}
		log.Info().Str("topic", msg.Topic()).Str("payload", string(msg.Payload())).Msg("MQTT command applied")
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) PublishStatus(payload []byte) error {
	return p.publish(p.topics.Status(), 0, true, payload)
}

func (p *RealPublisher) PublishRelay(id model.ActuatorID, on bool) error {
	return p.publish(p.topics.Relay(id), 1, true, formatSwitch(on))
}

func (p *RealPublisher) PublishEvent(event Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	return p.publish(p.topics.Events(), 1, false, payload)
}

func (p *RealPublisher) PublishTemperature(id model.SensorID, r model.Reading) error {
	if r.Valid {
		if err := p.publish(p.topics.Temperature(id), 0, true, formatDegrees(r.Value)); err != nil {
			return err
		}
	}
	return p.publish(p.topics.TemperatureValid(id), 0, true, formatSwitch(r.Valid))
}

func (p *RealPublisher) PublishContact(id string, open bool) error {
	return p.publish(p.topics.Contact(id), 1, true, formatSwitch(open))
}

// Close marks the device disconnected and disconnects from the broker.
func (p *RealPublisher) Close() error {
	err := p.publish(p.topics.State(), 1, true, []byte("disconnected"))
	p.client.Disconnect(1000)
	return err
}
