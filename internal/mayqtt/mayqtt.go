// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mayqtt implements an MQTT client which receives policy changes from
// shjpeg/cmd/policy and publishes codec status to shjpeg/status.
package mayqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/net/trace"
)

const (
	policyTopic = "shjpeg/cmd/policy"
	statusTopic = "shjpeg/status"
	resultTopic = "shjpeg/result"
)

type policyRequest struct {
	Policy string `json:"policy"`
}

type PublishRequest struct {
	Topic    string
	Qos      byte
	Retained bool
	Payload  interface{}
}

// parsePolicy extracts the policy name of a message on policyTopic, which
// is either a JSON object or the bare name.
func parsePolicy(payload []byte) string {
	var pr policyRequest
	if err := json.Unmarshal(payload, &pr); err == nil {
		return pr.Policy
	}
	return string(payload)
}

func mqttLoop(broker, clientID string, policies chan<- string, requests <-chan PublishRequest) error {
	tr := trace.New("MQTT", "Loop")
	defer tr.Finish()

	tr.LazyPrintf("Connecting to MQTT broker %s", broker)
	opts := mqtt.NewClientOptions().AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectRetry(true)
	opts.OnConnect = func(c mqtt.Client) {
		tr.LazyPrintf("OnConnect, subscribing to %s", policyTopic)
		token := c.Subscribe(
			policyTopic,
			0, /* qos */
			func(_ mqtt.Client, m mqtt.Message) {
				tr.LazyPrintf("message on topic %s: %q", m.Topic(), string(m.Payload()))
				select {
				case policies <- parsePolicy(m.Payload()):
				default:
					// policy change already pending; drop
				}
			})
		if token.Wait() && token.Error() != nil {
			tr.LazyPrintf("subscription failed! %v", token.Error())
		}
	}
	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connection failed: %v", token.Error())
	}
	tr.LazyPrintf("Connected to MQTT broker %s", broker)

	for r := range requests {
		tr.LazyPrintf("publishing on topic %s: %q", r.Topic, r.Payload)
		// discard Token, MQTT publishing is best-effort
		_ = mqttClient.Publish(r.Topic, r.Qos, r.Retained, r.Payload)
	}
	return nil
}

var (
	mu         sync.Mutex
	publish    chan PublishRequest
	lastStatus string
)

// MQTT connects to broker in the background. Policy names received on
// shjpeg/cmd/policy are sent to policies, which may be nil.
func MQTT(broker, clientID string, policies chan<- string) {
	requests := make(chan PublishRequest)
	mu.Lock()
	publish = requests
	mu.Unlock()
	go func() {
		if err := mqttLoop(broker, clientID, policies, requests); err != nil {
			log.Print(err)
		}
	}()
}

func send(r PublishRequest) {
	mu.Lock()
	ch := publish
	mu.Unlock()
	select {
	case ch <- r:
	default:
		// drop message if MQTT is not connected
	}
}

// Publishf publishes a retained status message, unless it equals the
// previous one.
func Publishf(format string, args ...interface{}) {
	status := fmt.Sprintf(format, args...)
	mu.Lock()
	// Prevent duplicate messages if status has not changed
	if lastStatus == status {
		mu.Unlock()
		return
	}
	lastStatus = status
	mu.Unlock()
	send(PublishRequest{
		Topic:    statusTopic,
		Retained: true,
		Payload:  []byte(status),
	})
}

// PublishJSON publishes v as JSON on shjpeg/result.
func PublishJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: %v", err)
		return
	}
	send(PublishRequest{
		Topic:   resultTopic,
		Payload: b,
	})
}
