package mqttclient

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const publishTimeout = 10 * time.Second

// Client publishes enrichment events to an MQTT broker.
type Client struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	log         zerolog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topicPrefix: normalizePrefix(opts.TopicPrefix),
		log:         opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("topic", c.EnrichmentTopic()).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func normalizePrefix(p string) string {
	return strings.Trim(p, "/")
}

// EnrichmentTopic is where enrichment events are published.
func (c *Client) EnrichmentTopic() string {
	if c.topicPrefix == "" {
		return "enrichments"
	}
	return c.topicPrefix + "/enrichments"
}

// PublishEnrichment sends ev at QoS 1 without blocking the caller; delivery
// failures are logged and counted.
func (c *Client) PublishEnrichment(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.failed.Add(1)
		c.log.Error().Err(err).Msg("marshal enrichment event")
		return
	}

	token := c.conn.Publish(c.EnrichmentTopic(), 1, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.failed.Add(1)
			c.log.Warn().Str("event_id", ev.EventID).Msg("mqtt publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			c.failed.Add(1)
			c.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("mqtt publish failed")
			return
		}
		c.published.Add(1)
		c.log.Debug().Str("event_id", ev.EventID).Str("vcon_uuid", ev.VconUUID).Msg("enrichment event published")
	}()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Counts returns the number of delivered and failed events.
func (c *Client) Counts() (published, failed int64) {
	return c.published.Load(), c.failed.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

// Event summarises one vCon enrichment run.
type Event struct {
	EventID     string    `json:"event_id"`
	VconUUID    string    `json:"vcon_uuid,omitempty"`
	Source      string    `json:"source"` // "http" or "watch:<file>"
	Processed   int       `json:"processed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	TotalTimeMS int64     `json:"total_time_ms"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(source, vconUUID, provider, model string, processed, skipped, failed int, totalTimeMS int64) Event {
	return Event{
		EventID:     uuid.NewString(),
		VconUUID:    vconUUID,
		Source:      source,
		Processed:   processed,
		Skipped:     skipped,
		Failed:      failed,
		TotalTimeMS: totalTimeMS,
		Provider:    provider,
		Model:       model,
		Timestamp:   time.Now().UTC(),
	}
}
