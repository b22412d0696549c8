package notification

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"accounts-service/internal/domain"
	"accounts-service/internal/email"
	"accounts-service/internal/trace"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.New("email").Option("missingkey=error").ParseFS(templatesFS, "templates/*.tmpl"))

var ErrUnknownEvent = errors.New("unknown event name")

type streamGroupReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// ConsumerConfig identifica el stream y el consumer group.
type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int64
	Block    time.Duration
	// RetryInterval es la espera antes de releer pendientes tras un fallo de envio.
	RetryInterval time.Duration
}

// Consumer lee eventos del stream, renderiza el correo y lo entrega.
type Consumer struct {
	logger *zap.Logger
	client streamGroupReader
	sender email.Sender
	cfg    ConsumerConfig
	now    func() time.Time
}

func NewConsumer(logger *zap.Logger, client streamGroupReader, sender email.Sender, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	return &Consumer{logger: logger, client: client, sender: sender, cfg: cfg, now: time.Now}
}

// Run procesa mensajes hasta que ctx se cancele. Primero drena los pendientes
// de este consumer y luego pasa a mensajes nuevos. Si un envio falla, los
// pendientes se releen pasado RetryInterval.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	cursor := "0"
	var retryAt time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}
		if cursor == ">" && !retryAt.IsZero() && !c.now().Before(retryAt) {
			cursor, retryAt = "0", time.Time{}
		}
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, cursor},
			Count:    c.cfg.Batch,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		read, acked := 0, 0
		for _, s := range streams {
			for _, msg := range s.Messages {
				read++
				if c.process(ctx, msg) {
					acked++
				}
			}
		}
		if acked < read && retryAt.IsZero() {
			retryAt = c.now().Add(c.cfg.RetryInterval)
		}
		// Sin avance sobre los pendientes se pasa a mensajes nuevos.
		if cursor == "0" && acked == 0 {
			cursor = ">"
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// process entrega un mensaje. Los mensajes ilegibles se descartan con ack;
// un fallo de envio deja el mensaje pendiente para reintento.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage) bool {
	event, err := decodeEvent(msg)
	if err != nil {
		c.logger.Error("drop malformed email event", zap.String("message_id", msg.ID), zap.Error(err))
		return c.ack(ctx, msg.ID)
	}
	log := trace.Logger(trace.WithID(ctx, event.TraceID), c.logger).With(
		zap.String("message_id", msg.ID),
		zap.String("event_name", event.EventName),
	)

	mail, err := Render(event)
	if err != nil {
		log.Error("drop unrenderable email event", zap.Error(err))
		return c.ack(ctx, msg.ID)
	}
	if err := c.sender.Send(ctx, mail); err != nil {
		log.Warn("send email failed", zap.String("to", event.To), zap.Error(err))
		return false
	}
	log.Info("email sent", zap.String("to", event.To))
	return c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) bool {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Warn("xack failed", zap.String("message_id", id), zap.Error(err))
		return false
	}
	return true
}

func decodeEvent(msg redis.XMessage) (domain.EmailEvent, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return domain.EmailEvent{}, fmt.Errorf("missing %q field", payloadField)
	}
	var event domain.EmailEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return domain.EmailEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(event.To) == "" {
		return domain.EmailEvent{}, errors.New("event without recipient")
	}
	return event, nil
}

// Render arma el correo correspondiente al nombre del evento.
func Render(event domain.EmailEvent) (email.Message, error) {
	subjectTmpl := templates.Lookup(event.EventName + ".subject")
	bodyTmpl := templates.Lookup(event.EventName + ".body")
	if subjectTmpl == nil || bodyTmpl == nil {
		return email.Message{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event.EventName)
	}
	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, event); err != nil {
		return email.Message{}, err
	}
	if err := bodyTmpl.Execute(&body, event); err != nil {
		return email.Message{}, err
	}
	return email.Message{
		To:      event.To,
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}
