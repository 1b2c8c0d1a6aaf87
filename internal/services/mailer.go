package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"storefront_back_end/internal/config"
	"storefront_back_end/internal/models"
)

// Mailer prévient la boutique par e-mail des nouvelles commandes et des
// changements de statut. L'envoi se fait hors requête.
type Mailer struct {
	cfg  config.SMTPConfig
	send func(msg *mail.Msg) error
	log  logrus.FieldLogger
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	m := &Mailer{cfg: cfg, log: logrus.WithField("component", "mailer")}
	m.send = m.dialAndSend
	return m
}

func (m *Mailer) dialAndSend(msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(10*time.Second),
	)
	if err != nil {
		return err
	}
	return client.DialAndSend(msg)
}

func (m *Mailer) OrderPlaced(_ context.Context, order models.Order) {
	subject := fmt.Sprintf("Nouvelle commande #%d", order.Ticket)
	m.dispatch(subject, orderHTML("Nouvelle commande reçue", order))
}

func (m *Mailer) OrderStatusChanged(_ context.Context, order models.Order, previous models.OrderStatus) {
	subject := fmt.Sprintf("%s #%d (%s → %s)", statusSubject(order.Status), order.Ticket, previous, order.Status)
	m.dispatch(subject, orderHTML("Statut de commande modifié", order))
}

func statusSubject(status models.OrderStatus) string {
	switch status {
	case models.StatusProcessing:
		return "⚙️ Commande en préparation"
	case models.StatusShipped:
		return "📦 Commande expédiée"
	case models.StatusCompleted:
		return "🎉 Commande terminée"
	case models.StatusCancelled:
		return "❌ Commande annulée"
	default:
		return "📋 Mise à jour de commande"
	}
}

func (m *Mailer) dispatch(subject, body string) {
	msg, err := m.buildMessage(subject, body)
	if err != nil {
		m.log.WithError(err).Error("❌ Construction de l'e-mail impossible")
		return
	}
	go func() {
		m.log.WithField("subject", subject).Info("📤 Envoi de l'e-mail")
		if err := m.send(msg); err != nil {
			m.log.WithError(err).WithField("subject", subject).Error("❌ Envoi de l'e-mail échoué")
		}
	}()
}

func (m *Mailer) buildMessage(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(m.cfg.NotifyTo); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

func orderHTML(title string, order models.Order) string {
	var rows strings.Builder
	for _, item := range order.Items {
		fmt.Fprintf(&rows, `
			<tr>
				<td>%s</td>
				<td>%d</td>
				<td>%.2f€</td>
				<td>%.2f€</td>
			</tr>`, html.EscapeString(item.Name), item.Quantity, item.Price, item.Subtotal())
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family: Arial, sans-serif;">
	<h2>%s</h2>
	<p>Commande #%d, statut <strong>%s</strong>, client %s.</p>
	<table style="border-collapse: collapse;">
		<thead><tr><th>Produit</th><th>Quantité</th><th>Prix unitaire</th><th>Total</th></tr></thead>
		<tbody>%s
		</tbody>
		<tfoot><tr><td colspan="3">Total:</td><td>%.2f€</td></tr></tfoot>
	</table>
</body>
</html>`, title, title, order.Ticket, order.Status, html.EscapeString(order.UserID), rows.String(), order.TotalPrice)
}

// LogNotifier journalise les événements de commande quand le SMTP n'est
// pas configuré.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogNotifier{log: log.WithField("component", "notifier")}
}

func (n *LogNotifier) OrderPlaced(_ context.Context, order models.Order) {
	n.log.WithFields(logrus.Fields{"ticket": order.Ticket, "total": order.TotalPrice}).Info("📬 Nouvelle commande")
}

func (n *LogNotifier) OrderStatusChanged(_ context.Context, order models.Order, previous models.OrderStatus) {
	n.log.WithFields(logrus.Fields{"ticket": order.Ticket, "from": previous, "to": order.Status}).Info("📬 Statut de commande modifié")
}
