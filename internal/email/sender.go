package email

import (
	"bytes"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"text/template"

	"github.com/13132klain/Cyber-Mtandao/internal/format"
)

type Sender interface {
	Send(to, subject, htmlBody string) error
}

type SMTPSender struct {
	host string
	port string
	from string
	auth smtp.Auth // nil for local dev (MailHog)
}

func NewSMTPSender() *SMTPSender {
	return &SMTPSender{
		host: getenv("SMTP_HOST", "localhost"),
		port: getenv("SMTP_PORT", "1025"),
		from: getenv("SMTP_FROM", "no-reply@cybermtandao.co.ke"),
		// auth: add when using a real provider (smtp.PlainAuth("", user, pass, host))
	}
}

func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	msg := buildRFC822(s.from, to, subject, htmlBody)
	return smtp.SendMail(addr, s.auth, s.from, []string{to}, msg)
}

func buildRFC822(from, to, subject, html string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "\r\n%s\r\n", html)
	return buf.Bytes()
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

var orderCreatedTpl = template.Must(template.New("orderCreated").Parse(`
<h2>Thanks for your order!</h2>
<p>Order ID: <b>{{.OrderID}}</b></p>
<p>Total: <b>{{.Total}}</b></p>
<p>You will receive an M-Pesa prompt on your phone to complete payment.</p>
`))

var paymentReceiptTpl = template.Must(template.New("paymentReceipt").Parse(`
<h2>Payment received</h2>
<p>Order ID: <b>{{.OrderID}}</b></p>
<p>Amount: <b>{{.Total}}</b></p>
<p>M-Pesa receipt: <b>{{.Receipt}}</b></p>
<p>We are now processing your request.</p>
`))

var paymentFailedTpl = template.Must(template.New("paymentFailed").Parse(`
<h2>Payment not completed</h2>
<p>Order ID: <b>{{.OrderID}}</b></p>
<p>Reason: {{.Reason}}</p>
<p>You can retry the payment from your orders page.</p>
`))

func RenderOrderCreatedEmail(orderID string, total float64) string {
	var buf bytes.Buffer
	_ = orderCreatedTpl.Execute(&buf, map[string]any{
		"OrderID": orderID,
		"Total":   format.Currency(total),
	})
	return buf.String()
}

func RenderPaymentReceiptEmail(orderID string, total float64, receipt string) string {
	var buf bytes.Buffer
	_ = paymentReceiptTpl.Execute(&buf, map[string]any{
		"OrderID": orderID,
		"Total":   format.Currency(total),
		"Receipt": receipt,
	})
	return buf.String()
}

func RenderPaymentFailedEmail(orderID, reason string) string {
	var buf bytes.Buffer
	_ = paymentFailedTpl.Execute(&buf, map[string]any{
		"OrderID": orderID,
		"Reason":  reason,
	})
	return buf.String()
}

// Fallback logger sender (useful for dev without SMTP)
type LogSender struct{}

func (LogSender) Send(to, subject, htmlBody string) error {
	log.Printf("[Email] to=%s subject=%q body=%q", to, subject, htmlBody)
	return nil
}
