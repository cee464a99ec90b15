// Package alert delivers anomalous-logon alerts to live dashboard subscribers and to security
// managers by email.
package alert

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Alert types and severities.
const (
	TypeAnomalyUserLogon = "anomaly_user_logon"
	SeverityHigh         = "high"
)

// Alert is the live message broadcast to an organization's subscribers.
type Alert struct {
	Type           string `json:"type"`
	OrganizationID string `json:"organization_id"`
	EndpointID     string `json:"endpoint_id"`
	UserID         string `json:"user_id"`
	Timestamp      string `json:"timestamp"`
	Message        string `json:"message"`
	Severity       string `json:"severity"`
	// Blocked reports whether the gateway confirmed the block.
	Blocked bool `json:"blocked"`
}

// NewLogonAlert builds the alert for a flagged user logging on to endpointID at ts.
func NewLogonAlert(orgID, endpointID, userID string, ts time.Time, blocked bool) Alert {
	msg := fmt.Sprintf("Suspected insider %s logged on to %s; network access of %s has been blocked.", userID, endpointID, endpointID)
	if !blocked {
		msg = fmt.Sprintf("Suspected insider %s logged on to %s; the automatic network block could not be confirmed, manual containment is required.", userID, endpointID)
	}
	return Alert{
		Type:           TypeAnomalyUserLogon,
		OrganizationID: orgID,
		EndpointID:     endpointID,
		UserID:         userID,
		Timestamp:      ts.Format(time.RFC3339),
		Message:        msg,
		Severity:       SeverityHigh,
		Blocked:        blocked,
	}
}

// Email is a composed alert email.
type Email struct {
	Subject string
	Text    string
	HTML    string
}

var emailHTML = template.Must(template.New("alert").Parse(`<div style="font-family:Segoe UI,Roboto,Helvetica,Arial,sans-serif;max-width:640px;margin:0 auto;border:1px solid #e5e7eb;border-radius:8px;overflow:hidden">
  <div style="background:#b91c1c;color:#fff;padding:16px 20px">
    <div style="font-size:18px;font-weight:700">Alert: suspicious user logon detected</div>
    <div style="opacity:.9;font-size:12px">InsiderWatch | {{if .Blocked}}automatic block applied{{else}}automatic block NOT confirmed{{end}}</div>
  </div>
  <div style="padding:20px">
    <p style="margin:0 0 12px 0;font-size:14px;line-height:1.6">{{.Message}}</p>
    <div style="margin:12px 0 16px 0">
      <span style="display:inline-block;background:#991b1b;color:#fff;border-radius:999px;padding:4px 10px;font-size:12px;font-weight:700">{{if .Blocked}}BLOCKED{{else}}BLOCK FAILED{{end}}</span>
      <span style="display:inline-block;background:#fef3c7;color:#92400e;border-radius:999px;padding:4px 10px;font-size:12px;margin-left:6px">ANOMALY DETECTED</span>
    </div>
    <table role="presentation" cellspacing="0" cellpadding="0" style="width:100%;border-collapse:collapse;font-size:14px">
      <tbody>
        <tr><td style="width:140px;color:#6b7280;padding:8px 0">User ID</td><td style="padding:8px 0"><b>{{.UserID}}</b></td></tr>
        <tr><td style="color:#6b7280;padding:8px 0">PC ID</td><td style="padding:8px 0"><b>{{.EndpointID}}</b></td></tr>
        <tr><td style="color:#6b7280;padding:8px 0">Time</td><td style="padding:8px 0">{{.Timestamp}}</td></tr>
      </tbody>
    </table>
    <div style="margin-top:16px;padding:12px 14px;background:#fef2f2;border:1px solid #fecaca;border-radius:6px;color:#991b1b;font-size:13px;line-height:1.5">
      Lift the block only with administrator approval. Review the user's and the endpoint's activity logs now.
    </div>
    <p style="margin:18px 0 0 0;color:#6b7280;font-size:12px">This message was sent automatically by InsiderWatch.</p>
  </div>
</div>
`))

// ComposeEmail renders the security-manager email for a.
func ComposeEmail(a Alert) (Email, error) {
	status := "block applied"
	if !a.Blocked {
		status = "block NOT confirmed"
	}
	text := fmt.Sprintf("[ALERT]\nSuspected insider %s logged on to PC %s.\nTime: %s\n> %s\n",
		a.UserID, a.EndpointID, a.Timestamp, a.Message)
	var buf bytes.Buffer
	if err := emailHTML.Execute(&buf, a); err != nil {
		return Email{}, fmt.Errorf("render alert email: %w", err)
	}
	return Email{
		Subject: fmt.Sprintf("InsiderWatch alert | suspicious user logon detected, %s (%s)", status, a.EndpointID),
		Text:    text,
		HTML:    buf.String(),
	}, nil
}
