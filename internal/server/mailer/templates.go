package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

const otpSubject = "Your LinkSphere verification code"

const otpHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Verify your email</h2>
  <p>Use the code below to finish setting up your LinkSphere account.</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in {{.Minutes}} minutes.</p>
  <p>If you did not request this, you can ignore this email{{if .Support}} or contact <a href="mailto:{{.Support}}">{{.Support}}</a>{{end}}.</p>
</body>
</html>`

const otpText = `Verify your email

Your LinkSphere verification code is: {{.Code}}

The code expires in {{.Minutes}} minutes.
If you did not request this, you can ignore this email.{{if .Support}} Questions: {{.Support}}{{end}}
`

var (
	otpHTMLTmpl = htmltemplate.Must(htmltemplate.New("otp.html").Parse(otpHTML))
	otpTextTmpl = texttemplate.Must(texttemplate.New("otp.txt").Parse(otpText))
)

type otpData struct {
	Code    string
	Minutes int
	Support string
}

// OTPMessage renders the verification email carrying code.
func OTPMessage(to, code string, ttl time.Duration, support string) (Message, error) {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	data := otpData{Code: code, Minutes: minutes, Support: support}

	var html, text bytes.Buffer
	if err := otpHTMLTmpl.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render otp html: %w", err)
	}
	if err := otpTextTmpl.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render otp text: %w", err)
	}

	return Message{
		To:      strings.TrimSpace(to),
		Subject: otpSubject,
		HTML:    html.String(),
		Text:    text.String(),
		Tag:     "email-verification",
	}, nil
}
