package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/config"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/metrics"
)

const (
	KindReceipt   = "receipt"
	KindTips      = "tips"
	KindResult    = "result"
	KindRecovery  = "recovery"
	KindLeadAlert = "lead_alert"
)

const defaultSendTimeout = 15 * time.Second

// Dispatcher composes the transactional emails and hands them to a Sender.
type Dispatcher struct {
	sender  Sender
	appName string
	timeout time.Duration
	leadsTo string

	wg sync.WaitGroup
}

func NewDispatcher(sender Sender, cfg config.EmailConfig, appName string) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if appName == "" {
		appName = "Pilla Tu Visa"
	}
	return &Dispatcher{
		sender:  sender,
		appName: appName,
		timeout: timeout,
		leadsTo: strings.TrimSpace(cfg.LeadsNotifyTo),
	}
}

// Configured reports whether sends can succeed at all.
func (d *Dispatcher) Configured() bool {
	_, disabled := d.sender.(Disabled)
	return !disabled
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	id, err := d.sender.Send(ctx, msg)

	outcome := metrics.Outcome(err)
	if errors.Is(err, ErrNotConfigured) {
		outcome = "disabled"
	}
	metrics.EmailsSent.WithLabelValues(kind, outcome).Inc()

	if err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	logger.InfoContext(ctx, "email sent", "kind", kind, "to", msg.To, "message_id", id)
	return nil
}

// SendReceipt emails the client a link to their receipt.
func (d *Dispatcher) SendReceipt(ctx context.Context, rec domain.Receipt, link string) error {
	id := strconv.FormatInt(rec.ID, 10)
	amount, _ := rec.Amount.Format()

	subject := fmt.Sprintf("Recibo de pago #%s | %s", id, d.appName)
	body := fmt.Sprintf(`<p style="margin:0 0 10px;">Hola %s,</p>
      <p style="margin:0 0 16px;">Aquí tienes tu comprobante de pago. Puedes abrirlo desde el siguiente enlace:</p>
      <p style="margin:0 0 18px;"><a href="%s" style="display:inline-block; background:#111827; color:#ffffff; text-decoration:none; padding:10px 14px; border-radius:10px; font-weight:700;">Ver recibo #%s</a></p>
      <table style="width:100%%; border-collapse:collapse; border:1px solid #e5e7eb;">
        <tr><td style="padding:10px 12px; color:#6b7280; font-weight:700;">Concepto</td><td style="padding:10px 12px;">%s</td></tr>
        <tr><td style="padding:10px 12px; color:#6b7280; font-weight:700;">Método</td><td style="padding:10px 12px;">%s</td></tr>
        <tr><td style="padding:10px 12px; color:#6b7280; font-weight:700;">Monto</td><td style="padding:10px 12px; font-weight:800;">$%s</td></tr>
      </table>`,
		esc(rec.ClientName), esc(link), esc(id), esc(rec.Concept), esc(rec.Method), esc(amount))

	text := strings.Join([]string{
		"Recibo de pago",
		"Recibo #" + id,
		"Concepto: " + rec.Concept,
		"Método: " + rec.Method,
		"Monto: $" + amount,
		"Link: " + link,
	}, "\n")

	return d.send(ctx, KindReceipt, Message{
		To:      rec.ClientEmail,
		ToName:  rec.ClientName,
		Subject: subject,
		Text:    text,
		HTML:    d.layout("Recibo de pago", body),
	})
}

// SendTips emails interview preparation notes written by staff.
func (d *Dispatcher) SendTips(ctx context.Context, rec domain.Receipt, req domain.TipsRequest) error {
	subject := fmt.Sprintf("Preparación para tu entrevista de visa | %s", d.appName)
	body := fmt.Sprintf(`<p style="margin:0 0 10px;">Hola %s,</p>
      <p style="margin:0 0 16px;">Tu cita está programada para el <strong>%s</strong>. Te compartimos estas recomendaciones:</p>
      <div style="margin:0 0 16px; line-height:1.5;">%s</div>`,
		esc(rec.ClientName), esc(req.AppointmentDate), paragraphs(req.Message))

	text := fmt.Sprintf("Hola %s,\n\nFecha de cita: %s\n\n%s", rec.ClientName, req.AppointmentDate, req.Message)

	return d.send(ctx, KindTips, Message{
		To:      rec.ClientEmail,
		ToName:  rec.ClientName,
		Subject: subject,
		Text:    text,
		HTML:    d.layout("Tips para tu entrevista", body),
	})
}

// SendResult notifies the client of the outcome of their application.
func (d *Dispatcher) SendResult(ctx context.Context, rec domain.Receipt, req domain.ResultRequest) error {
	subject := fmt.Sprintf("Resultado de tu trámite: %s | %s", req.Status, d.appName)
	body := fmt.Sprintf(`<p style="margin:0 0 10px;">Hola %s,</p>
      <p style="margin:0 0 16px;">Estado de tu visa: <strong>%s</strong></p>
      <div style="margin:0 0 16px; line-height:1.5;">%s</div>`,
		esc(rec.ClientName), esc(req.Status), paragraphs(req.Message))

	text := fmt.Sprintf("Hola %s,\n\nEstado: %s\n\n%s", rec.ClientName, req.Status, req.Message)

	return d.send(ctx, KindResult, Message{
		To:      rec.ClientEmail,
		ToName:  rec.ClientName,
		Subject: subject,
		Text:    text,
		HTML:    d.layout("Resultado de tu visa", body),
	})
}

// SendRecovery emails a password reset link.
func (d *Dispatcher) SendRecovery(ctx context.Context, to, username, link string, ttl time.Duration) error {
	subject := fmt.Sprintf("Restablecer contraseña | %s", d.appName)
	minutes := int(ttl.Minutes())
	body := fmt.Sprintf(`<p style="margin:0 0 10px;">Hola %s,</p>
      <p style="margin:0 0 16px;">Recibimos una solicitud para restablecer tu contraseña. El enlace vence en %d minutos.</p>
      <p style="margin:0 0 18px;"><a href="%s" style="display:inline-block; background:#111827; color:#ffffff; text-decoration:none; padding:10px 14px; border-radius:10px; font-weight:700;">Restablecer contraseña</a></p>
      <p style="margin:0; color:#6b7280;">Si no solicitaste el cambio, ignora este correo.</p>`,
		esc(username), minutes, esc(link))

	text := fmt.Sprintf("Hola %s,\n\nRestablece tu contraseña aquí (vence en %d minutos):\n%s\n\nSi no solicitaste el cambio, ignora este correo.", username, minutes, link)

	return d.send(ctx, KindRecovery, Message{
		To:      to,
		ToName:  username,
		Subject: subject,
		Text:    text,
		HTML:    d.layout("Recuperar acceso", body),
	})
}

// SendLeadAlert tells staff about a new lead. It is a no-op without a
// LEADS_NOTIFY_TO address.
func (d *Dispatcher) SendLeadAlert(ctx context.Context, lead domain.Lead) error {
	if d.leadsTo == "" {
		return nil
	}
	subject := fmt.Sprintf("Nuevo potencial: %s", lead.Name)
	body := fmt.Sprintf(`<table style="width:100%%; border-collapse:collapse; border:1px solid #e5e7eb;">
        <tr><td style="padding:8px 12px; color:#6b7280; font-weight:700;">Nombre</td><td style="padding:8px 12px;">%s</td></tr>
        <tr><td style="padding:8px 12px; color:#6b7280; font-weight:700;">Email</td><td style="padding:8px 12px;">%s</td></tr>
        <tr><td style="padding:8px 12px; color:#6b7280; font-weight:700;">Teléfono</td><td style="padding:8px 12px;">%s</td></tr>
        <tr><td style="padding:8px 12px; color:#6b7280; font-weight:700;">Mensaje</td><td style="padding:8px 12px;">%s</td></tr>
      </table>`,
		esc(lead.Name), esc(lead.Email), esc(lead.Phone), esc(lead.Message))

	text := fmt.Sprintf("Nuevo potencial #%d\nNombre: %s\nEmail: %s\nTeléfono: %s\nMensaje: %s",
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Message)

	return d.send(ctx, KindLeadAlert, Message{
		To:      d.leadsTo,
		Subject: subject,
		Text:    text,
		HTML:    d.layout("Nuevo potencial", body),
	})
}

// Go runs fn in the background on a fresh context bounded by the send
// timeout. The caller's context is only used for log fields.
func (d *Dispatcher) Go(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	log := logger.WithContext(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		bg, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := fn(bg); err != nil {
			log.Warn("background email failed", "kind", kind, "error", err)
		}
	}()
}

// Wait blocks until background sends finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) layout(title, body string) string {
	return fmt.Sprintf(`<div style="font-family:Arial,Helvetica,sans-serif; background:#f3f4f6; padding:24px;">
    <div style="max-width:640px; margin:0 auto; background:#ffffff; border:1px solid #e5e7eb; border-radius:14px; padding:22px; color:#111827;">
      <h2 style="margin:0 0 10px;">%s</h2>
      <div style="height:4px; background:#dc2626; border-radius:999px; margin:10px 0 16px;"></div>
      %s
      <p style="margin:16px 0 0; color:#6b7280; font-size:12px;">%s</p>
    </div>
  </div>`, esc(title), body, esc(d.appName))
}

func esc(s string) string { return html.EscapeString(s) }

// paragraphs escapes free text and keeps its line breaks.
func paragraphs(s string) string {
	return strings.ReplaceAll(esc(strings.TrimSpace(s)), "\n", "<br>")
}
