// Package publish pushes decoded register data to an MQTT broker using the
// monitoring topic layout: <namespace>/<datalog>/inputs/<page> and
// <namespace>/<datalog>/hold/<register>.
package publish

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/eg4tools/goeg4/internal/config"
	"github.com/eg4tools/goeg4/internal/frame"
)

const connectTimeout = 10 * time.Second

// InputsTopic returns the topic for a decoded inputs page. Page numbers
// below zero address the whole sweep ("all").
func InputsTopic(namespace, datalog string, page int) string {
	if page < 0 {
		return fmt.Sprintf("%s/%s/inputs/all", namespace, datalog)
	}
	return fmt.Sprintf("%s/%s/inputs/%d", namespace, datalog, page)
}

// HoldTopic returns the per-register hold topic.
func HoldTopic(namespace, datalog string, reg uint16) string {
	return fmt.Sprintf("%s/%s/hold/%d", namespace, datalog, reg)
}

// InputsPayload renders records as a flat label-to-value JSON object.
// Composite sub-fields flatten to label.name keys; registers without a rule
// key as register_<number>.
func InputsPayload(records []frame.Record) ([]byte, error) {
	out := make(map[string]any, len(records))
	for _, rec := range records {
		if rec.Fields != nil {
			for _, f := range rec.Fields {
				out[rec.Label+"."+f.Name] = f.Value
			}
			continue
		}
		key := rec.Label
		if !rec.Known {
			key = "register_" + strconv.Itoa(int(rec.Register))
		}
		out[key] = rec.Value
	}
	return json.Marshal(out)
}

// Publisher holds an open broker connection.
type Publisher struct {
	client    mqtt.Client
	namespace string
}

// Connect dials the broker from cfg and waits for the session.
func Connect(cfg config.MQTT) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID("goeg4-analyze").
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		logrus.WithField("host", cfg.Host).Info("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logrus.WithError(err).Warn("mqtt connection lost")
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s:%d: timeout", cfg.Host, cfg.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Publisher{client: client, namespace: cfg.Namespace}, nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// PublishInputs sends one decoded inputs payload.
func (p *Publisher) PublishInputs(datalog string, page int, records []frame.Record) error {
	payload, err := InputsPayload(records)
	if err != nil {
		return fmt.Errorf("render inputs payload: %w", err)
	}
	return p.publish(InputsTopic(p.namespace, datalog, page), payload, false)
}

// PublishHold sends one raw hold register value as a retained message.
func (p *Publisher) PublishHold(datalog string, reg uint16, value uint16) error {
	payload := []byte(strconv.Itoa(int(value)))
	return p.publish(HoldTopic(p.namespace, datalog, reg), payload, true)
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) error {
	token := p.client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	logrus.WithField("topic", topic).Debug("published")
	return nil
}
