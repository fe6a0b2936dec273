package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/13132klain/Cyber-Mtandao/internal/email"
	"github.com/13132klain/Cyber-Mtandao/internal/events"
)

func main() {
	log.Println("Email worker starting...")
	startConsumer()
}

func startConsumer() {
	brokers := getenv("KAFKA_BROKERS", "localhost:9092")
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{brokers},
		GroupTopics: []string{events.TopicOrders, events.TopicPayments},
		GroupID:     "email-workers", // its own consumer group
		MinBytes:    1e3, MaxBytes: 10e6,
	})
	defer reader.Close()

	sender := pickSender()
	log.Println("[email-worker] consuming (group=email-workers)")
	for {
		msg, err := reader.ReadMessage(context.Background())
		if err != nil {
			log.Printf("[email-worker] read error: %v", err)
			return
		}

		var evt events.Envelope
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Printf("[email-worker] bad json: %v; payload=%s", err, string(msg.Value))
			continue
		}

		switch evt.EventType {
		case events.EventOrderCreated:
			handleOrderCreated(sender, evt)
		case events.EventPaymentCompleted:
			handlePaymentCompleted(sender, evt)
		case events.EventPaymentFailed:
			handlePaymentFailed(sender, evt)
		default:
			// ignore other event types
		}
	}
}

func handleOrderCreated(sender email.Sender, evt events.Envelope) {
	data := toMap(evt.Data)
	orderID := toString(data["orderId"])
	total := toFloat(data["totalAmount"])
	// Customer email lookup belongs on the user record; for demo accept override via env:
	to := getenv("DEMO_TO_EMAIL", "test@example.local")

	body := email.RenderOrderCreatedEmail(orderID, total)
	if err := sender.Send(to, "Your order confirmation", body); err != nil {
		log.Printf("[email-worker] send failed: %v", err)
		return
	}

	log.Printf("[email-worker] sent OrderCreated email to=%s order=%s total=%.2f", to, orderID, total)
}

func handlePaymentCompleted(sender email.Sender, evt events.Envelope) {
	data := toMap(evt.Data)
	orderID := toString(data["orderId"])
	total := toFloat(data["amount"])
	receipt := toString(data["receiptNumber"])

	to := getenv("DEMO_TO_EMAIL", "test@example.local")

	body := email.RenderPaymentReceiptEmail(orderID, total, receipt)
	if err := sender.Send(to, "Your M-Pesa payment receipt", body); err != nil {
		log.Printf("[email-worker] send failed: %v", err)
		return
	}

	log.Printf("[email-worker] sent PaymentCompleted email to=%s order=%s receipt=%s", to, orderID, receipt)
}

func handlePaymentFailed(sender email.Sender, evt events.Envelope) {
	data := toMap(evt.Data)
	orderID := toString(data["orderId"])
	reason := toString(data["resultDesc"])

	to := getenv("DEMO_TO_EMAIL", "test@example.local")

	body := email.RenderPaymentFailedEmail(orderID, reason)
	if err := sender.Send(to, "Your payment was not completed", body); err != nil {
		log.Printf("[email-worker] send failed: %v", err)
		return
	}

	log.Printf("[email-worker] sent PaymentFailed email to=%s order=%s reason=%q", to, orderID, reason)
}

func pickSender() email.Sender {
	// Use SMTP if configured; else fallback to log
	if os.Getenv("SMTP_HOST") != "" || os.Getenv("SMTP_PORT") != "" {
		return email.NewSMTPSender()
	}
	return email.LogSender{}
}

// helpers
func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func toMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}
