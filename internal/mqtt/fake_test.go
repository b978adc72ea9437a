package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct {
	paho.Token
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type published struct {
	Topic    string
	Retained bool
	Payload  string
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

// fakeClient records publishes and lets tests deliver messages to subscribers.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	published    []published
	handlers     map[string]paho.MessageHandler
	unsubscribed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}

	c.mu.Lock()
	c.published = append(c.published, published{Topic: topic, Retained: retained, Payload: body})
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.handlers[topic] = callback
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) deliver(topic, payload string) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, fakeMessage{topic: topic, payload: []byte(payload)})
	return true
}

func (c *fakeClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].Topic == topic {
			return c.published[i], true
		}
	}
	return published{}, false
}

func (c *fakeClient) unsubscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}
