package mail

import (
	"html"
	"strings"

	"gopkg.in/gomail.v2"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// BuildMessage renders a plain text email with an HTML alternative.
func BuildMessage(s Settings, m Message) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.Auth.User, s.FromName)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)
	msg.AddAlternative("text/html", htmlBody(m.Body))
	return msg
}

func htmlBody(body string) string {
	escaped := html.EscapeString(body)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}
