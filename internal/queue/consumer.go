// Package queue contains the audit consumer that listens to the
// reservations.imported queue and appends one line per event to a log file.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    log "github.com/sirupsen/logrus"
)

// DefaultImportLog is where StartImportConsumer writes when no path is given.
const DefaultImportLog = "logs/imports.log"

// StartImportConsumer connects to RabbitMQ, declares the durable
// reservations.imported queue and appends every event to logPath. Broker
// failures are retried with a capped backoff. It returns only when ctx is
// cancelled.
func StartImportConsumer(ctx context.Context, url, logPath string) error {
    if logPath == "" {
        logPath = DefaultImportLog
    }
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.WithError(err).Warnf("import-consumer: dial failed; retrying in %s", backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, logPath)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.WithError(err).Warn("import-consumer: consume loop ended; reconnecting")
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logPath string) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.WithError(err).Warn("import-consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(ReservationsImportedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(ReservationsImportedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := HandleMessage(d.Body, logPath); err != nil {
                log.WithError(err).Error("import-consumer: handle message failed")
                _ = d.Nack(false, false) // do not requeue poison messages
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// HandleMessage decodes one event and appends its audit line to logPath.
func HandleMessage(body []byte, logPath string) error {
    var ev ReservationsImportedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatImportLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatImportLine renders an event as a single newline-terminated line.
func FormatImportLine(ev ReservationsImportedEvent) string {
    names := make([]string, 0, len(ev.Reservations))
    for _, r := range ev.Reservations {
        names = append(names, fmt.Sprintf("%s@%s %s(%d)", r.ClientName, r.ServiceDate, r.ArrivalTime, r.Pax))
    }
    key := ev.IdempotencyKey
    if key == "" {
        key = "-"
    }
    return fmt.Sprintf("[%s] Zenchef import | key=%s | from=%s | to=%s | count=%d | reservations=[%s]\n",
        ev.ImportedAt, key, ev.FromDate, ev.ToDate, ev.Count, strings.Join(names, ", "))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
