package queue

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/XANi/hassbridge/hass"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client is the part of mqtt.Client the exporter uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

type Config struct {
	MQTTAddr string
	Logger   *zap.SugaredLogger
	Hub      *hass.Hub
	// NodeID separates discovery of multiple bridges, defaults to "hassbridge"
	NodeID          string
	DiscoveryPrefix string
	TopicPrefix     string
	PublishTimeout  time.Duration
}

// Queue exports hub entities over MQTT using Home Assistant discovery and
// routes commands from MQTT back to the hub.
type Queue struct {
	client   Client
	cfg      Config
	log      *zap.SugaredLogger
	hub      *hass.Hub
	commands map[string]command
	exported map[string]hass.Entity
	sync.RWMutex
}

func (c *Config) setDefaults() {
	if c.NodeID == "" {
		c.NodeID = "hassbridge"
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "hassbridge/" + c.NodeID
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

// BridgeTopic carries online/offline of the bridge itself.
func (c *Config) BridgeTopic() string {
	return c.TopicPrefix + "/status"
}

// New connects to the broker and registers the queue as hub state sink.
func New(cfg *Config) (*Queue, error) {
	cfg.setDefaults()
	mqttURL, err := url.Parse(cfg.MQTTAddr)
	if err != nil {
		return nil, fmt.Errorf("cannot parse MQTT URL: %w", err)
	}
	p, _ := mqttURL.User.Password()
	var q *Queue
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTAddr).
		SetUsername(mqttURL.User.Username()).
		SetPassword(p).
		SetClientID("hassbridge-" + randomString(8)).
		SetKeepAlive(2*time.Second).
		SetPingTimeout(1*time.Second).
		SetWill(cfg.BridgeTopic(), "offline", 1, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			// broker may have lost retained discovery and our subscriptions
			if q != nil {
				q.Republish()
			}
		})
	client := mqtt.NewClient(opts)
	q = newQueue(cfg, client)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to %s: %w", mqttURL.Host, token.Error())
	}
	cfg.Hub.AddStateSink(q)
	return q, nil
}

// NewWithClient uses an already connected client.
func NewWithClient(cfg *Config, client Client) *Queue {
	cfg.setDefaults()
	q := newQueue(cfg, client)
	q.Republish()
	cfg.Hub.AddStateSink(q)
	return q
}

func newQueue(cfg *Config, client Client) *Queue {
	return &Queue{
		client:   client,
		cfg:      *cfg,
		log:      cfg.Logger,
		hub:      cfg.Hub,
		commands: map[string]command{},
		exported: map[string]hass.Entity{},
	}
}

func (q *Queue) publish(topic string, retained bool, payload interface{}) error {
	token := q.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(q.cfg.PublishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Republish sends bridge status, discovery and state of every hub entity and
// renews command subscriptions.
func (q *Queue) Republish() {
	q.Lock()
	q.commands = map[string]command{}
	q.Unlock()
	if err := q.publish(q.cfg.BridgeTopic(), true, "online"); err != nil {
		q.log.Warnf("%s", err)
	}
	for _, e := range q.hub.Entities() {
		q.EntityAdded(e)
		if st, ok := q.state(e); ok {
			q.StateChanged(e, st)
		}
	}
}

func (q *Queue) state(e hass.Entity) (hass.State, bool) {
	defer func() {
		recover()
	}()
	if !e.Available() {
		return hass.State{State: hass.StateUnknown}, true
	}
	return e.State(), true
}

// EntityAdded publishes retained discovery and subscribes to command topics.
func (q *Queue) EntityAdded(e hass.Entity) {
	d := NewDiscovery(q.cfg.TopicPrefix, e)
	payload, err := json.Marshal(&d)
	if err != nil {
		q.log.Errorf("could not encode discovery of %s: %s", e.UniqueID(), err)
		return
	}
	q.Lock()
	q.exported[e.UniqueID()] = e
	q.Unlock()
	if err := q.publish(ConfigTopic(q.cfg.DiscoveryPrefix, q.cfg.NodeID, e), true, payload); err != nil {
		q.log.Warnf("discovery of %s: %s", e.UniqueID(), err)
	}
	for topic, cmd := range commandsFor(d, e) {
		q.Lock()
		_, subscribed := q.commands[topic]
		q.commands[topic] = cmd
		q.Unlock()
		if subscribed {
			continue
		}
		token := q.client.Subscribe(topic, 1, q.onMessage)
		if token.WaitTimeout(q.cfg.PublishTimeout) && token.Error() != nil {
			q.log.Warnf("subscribing to %s: %s", topic, token.Error())
		}
	}
}

// EntityRemoved clears retained discovery, which makes Home Assistant drop the entity.
func (q *Queue) EntityRemoved(e hass.Entity) {
	d := NewDiscovery(q.cfg.TopicPrefix, e)
	var topics []string
	q.Lock()
	delete(q.exported, e.UniqueID())
	for topic := range commandsFor(d, e) {
		if _, ok := q.commands[topic]; ok {
			delete(q.commands, topic)
			topics = append(topics, topic)
		}
	}
	q.Unlock()
	if len(topics) > 0 {
		q.client.Unsubscribe(topics...).WaitTimeout(q.cfg.PublishTimeout)
	}
	if err := q.publish(ConfigTopic(q.cfg.DiscoveryPrefix, q.cfg.NodeID, e), true, ""); err != nil {
		q.log.Warnf("removing discovery of %s: %s", e.UniqueID(), err)
	}
	if err := q.publish(entityTopics(q.cfg.TopicPrefix, e).available, true, "offline"); err != nil {
		q.log.Warnf("%s", err)
	}
}

type outMessage struct {
	topic   string
	payload any
}

// StateChanged publishes availability, state and attributes of e.
func (q *Queue) StateChanged(e hass.Entity, st hass.State) {
	t := entityTopics(q.cfg.TopicPrefix, e)
	availability := "offline"
	if st.State != hass.StateUnknown {
		availability = "online"
	}
	msgs := []outMessage{
		{t.available, availability},
		{t.state, st.State},
	}
	if len(st.Attributes) > 0 {
		attrs, err := json.Marshal(st.Attributes)
		if err != nil {
			q.log.Warnf("could not encode attributes of %s: %s", e.UniqueID(), err)
		} else {
			msgs = append(msgs, outMessage{t.attributes, attrs})
		}
	}
	if v, ok := st.Attributes["current_position"]; ok {
		msgs = append(msgs, outMessage{t.position, fmt.Sprint(v)})
	}
	// off is not a preset mode, power is carried by the state topic
	if v, ok := st.Attributes["speed"]; ok && fmt.Sprint(v) != hass.StateOff {
		msgs = append(msgs, outMessage{t.speed, fmt.Sprint(v)})
	}
	if v, ok := st.Attributes["direction"]; ok {
		msgs = append(msgs, outMessage{t.direction, fmt.Sprint(v)})
	}
	for _, m := range msgs {
		if err := q.publish(m.topic, true, m.payload); err != nil {
			q.log.Warnf("state of %s: %s", e.UniqueID(), err)
		}
	}
}

// Exported returns number of entities currently exported.
func (q *Queue) Exported() int {
	q.RLock()
	defer q.RUnlock()
	return len(q.exported)
}
