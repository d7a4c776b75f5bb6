package bus

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cordum/zipmark/core/infra/logging"
	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// NatsBus is a thin wrapper over a NATS connection that speaks protobuf
// structpb payloads.
type NatsBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	jsEnabled bool
	ackWait   time.Duration
}

const (
	// SubjectRequest carries watermark requests to workers.
	SubjectRequest = "zipmark.request"
	// SubjectResult carries dispatch results back to callers.
	SubjectResult = "zipmark.result"
	// QueueWorkers load-balances requests across workers.
	QueueWorkers = "zipmark-workers"

	// FieldBusMsgID overrides the JetStream msg-id for explicit resubmits.
	FieldBusMsgID  = "bus_msg_id"
	fieldRequestID = "request_id"

	envUseJetStream = "NATS_USE_JETSTREAM"
	envJSAckWait    = "NATS_JS_ACK_WAIT"
	envJSMaxAge     = "NATS_JS_MAX_AGE"

	defaultAckWait = 5 * time.Minute
	defaultMaxAge  = 24 * time.Hour

	streamZipmark = "ZIPMARK"
)

var (
	errNilBus     = errors.New("nats bus not initialized")
	errNilPayload = errors.New("nil bus payload")
	errEmptyTopic = errors.New("empty subject")
)

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("zipmark-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("bus", "disconnected from nats", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected to nats", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("bus", "connection closed")
		}),
	}
	tlsCfg, err := natsTLSConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		opts = append(opts, nats.Secure(tlsCfg))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	b := &NatsBus{nc: nc, ackWait: defaultAckWait}
	b.initJetStreamFromEnv()
	return b, nil
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// Publish sends a protobuf-encoded payload on the given subject.
func (b *NatsBus) Publish(subject string, payload *structpb.Struct) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if payload == nil {
		return errNilPayload
	}
	data, err := proto.Marshal(payload)
	if err != nil {
		return err
	}
	if b.jsEnabled && isDurableSubject(subject) {
		if msgID := computeMsgID(subject, payload); msgID != "" {
			_, err = b.js.Publish(subject, data, nats.MsgId(msgID))
		} else {
			_, err = b.js.Publish(subject, data)
		}
		return err
	}
	return b.nc.Publish(subject, data)
}

// Subscribe attaches a subscription that decodes payloads and invokes the handler.
// When JetStream is enabled, durable subjects are consumed with explicit ack/nak semantics.
func (b *NatsBus) Subscribe(subject, queue string, handler func(*structpb.Struct) error) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if handler == nil {
		return errors.New("nil handler")
	}
	if b.jsEnabled && isDurableSubject(subject) {
		cb := func(msg *nats.Msg) {
			payload, err := decode(msg.Data)
			if err != nil {
				logging.Error("bus", "failed to unmarshal payload", "subject", subject, "error", err)
				_ = msg.Ack()
				return
			}
			delivered := uint64(1)
			if meta, mErr := msg.Metadata(); mErr == nil {
				delivered = meta.NumDelivered
			}
			if nak, delay := settle(subject, handler(payload), true, delivered); nak {
				if delay > 0 {
					_ = msg.NakWithDelay(delay)
				} else {
					_ = msg.Nak()
				}
				return
			}
			_ = msg.Ack()
		}

		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.AckWait(b.ackWait),
			nats.MaxAckPending(256),
		}
		if durable := durableName(subject, queue); durable != "" {
			opts = append(opts, nats.Durable(durable))
		}

		var err error
		if queue == "" {
			_, err = b.js.Subscribe(subject, cb, opts...)
		} else {
			_, err = b.js.QueueSubscribe(subject, queue, cb, opts...)
		}
		return err
	}

	cb := func(msg *nats.Msg) {
		payload, err := decode(msg.Data)
		if err != nil {
			logging.Error("bus", "failed to unmarshal payload", "subject", subject, "error", err)
			return
		}
		settle(subject, handler(payload), false, 1)
	}
	if queue == "" {
		_, err := b.nc.Subscribe(subject, cb)
		return err
	}
	_, err := b.nc.QueueSubscribe(subject, queue, cb)
	return err
}

// settle decides what happens to a message once its handler returned.
// nak is true when the message should be redelivered after delay. A
// retryable error that cannot be redelivered, because the subscription has
// no redelivery or the limit is reached, runs its fallback instead.
func settle(subject string, err error, redeliver bool, delivered uint64) (nak bool, delay time.Duration) {
	if err == nil {
		return false, 0
	}
	base, retryable := RetryDelay(err)
	if !retryable {
		logging.Error("bus", "handler error (ack)", "subject", subject, "error", err)
		return false, 0
	}
	if redeliver && delivered < MaxRedeliveries {
		return true, redeliveryDelay(base, delivered)
	}
	logging.Warn("bus", "not redelivering, running fallback", "subject", subject, "deliveries", delivered, "error", err)
	if fbErr := GiveUp(err); fbErr != nil {
		logging.Error("bus", "fallback failed", "subject", subject, "error", fbErr)
	}
	return false, 0
}

func (b *NatsBus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

func (b *NatsBus) Status() string {
	if b == nil || b.nc == nil {
		return "UNKNOWN"
	}
	return b.nc.Status().String()
}

func (b *NatsBus) ConnectedURL() string {
	if b == nil || b.nc == nil {
		return ""
	}
	return b.nc.ConnectedUrl()
}

func decode(data []byte) (*structpb.Struct, error) {
	var payload structpb.Struct
	if err := proto.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &payload, nil
}

func initJetStreamEnabled() bool {
	val := strings.TrimSpace(os.Getenv(envUseJetStream))
	if val == "" {
		return false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (b *NatsBus) initJetStreamFromEnv() {
	if b == nil || b.nc == nil {
		return
	}
	if !initJetStreamEnabled() {
		return
	}
	ackWait := envDuration(envJSAckWait, defaultAckWait)
	maxAge := envDuration(envJSMaxAge, defaultMaxAge)

	js, err := b.nc.JetStream()
	if err != nil {
		logging.Warn("bus", "jetstream init failed", "error", err)
		return
	}
	if _, err := js.AccountInfo(); err != nil {
		logging.Warn("bus", "jetstream not available", "error", err)
		return
	}

	subjects := []string{SubjectRequest, SubjectResult}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:       streamZipmark,
		Subjects:   subjects,
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		MaxAge:     maxAge,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		// Stream may already exist; treat that as success.
		if _, infoErr := js.StreamInfo(streamZipmark); infoErr != nil {
			logging.Warn("bus", "jetstream ensure stream failed", "stream", streamZipmark, "error", err)
		}
	} else {
		logging.Info("bus", "jetstream stream ensured", "stream", streamZipmark, "max_age", maxAge)
	}

	b.js = js
	b.jsEnabled = true
	b.ackWait = ackWait
	logging.Info("bus", "jetstream enabled", "ack_wait", ackWait)
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func isDurableSubject(subject string) bool {
	return subject == SubjectRequest || subject == SubjectResult
}

func durableName(subject, queue string) string {
	name := sanitizeDurable(subject)
	if name == "" {
		return ""
	}
	q := sanitizeDurable(queue)
	if q == "" {
		return "dur_" + name
	}
	return "dur_" + q + "__" + name
}

func sanitizeDurable(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "*", "STAR")
	s = strings.ReplaceAll(s, ">", "GT")
	return strings.TrimSpace(s)
}

func computeMsgID(subject string, payload *structpb.Struct) string {
	if payload == nil {
		return ""
	}
	fields := payload.GetFields()
	if override := strings.TrimSpace(fields[FieldBusMsgID].GetStringValue()); override != "" {
		return subject + ":override:" + override
	}
	id := strings.TrimSpace(fields[fieldRequestID].GetStringValue())
	if id == "" {
		return ""
	}
	return subject + ":" + id
}
