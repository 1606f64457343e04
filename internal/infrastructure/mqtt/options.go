package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Will is the last will registered with the broker. The broker publishes it,
// retained, when the connection drops without a clean disconnect.
type Will struct {
	Topic   string
	Payload []byte
}

// brokerURL returns tcp:// or ssl:// depending on the TLS setting.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// buildClientOptions creates paho options from the mqtt config section.
//
// Sessions are clean; the broker keeps nothing between connections and
// subscriptions are restored by the client itself.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureWill registers the last will, falling back to a plain offline
// message on the site's health topic when w carries no payload.
//
// QoS: 1, Retained: true
func configureWill(opts *pahomqtt.ClientOptions, site string, clientID string, w Will) {
	if w.Topic == "" {
		w.Topic = Topics{Site: site}.Health()
	}
	if len(w.Payload) == 0 {
		w.Payload = defaultWillPayload(site, clientID)
	}
	opts.SetBinaryWill(w.Topic, w.Payload, 1, true)
}

func defaultWillPayload(site, clientID string) []byte {
	return fmt.Appendf(nil,
		`{"status":"offline","site":"%s","client_id":"%s","timestamp":"%s"}`,
		site,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
