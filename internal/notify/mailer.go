// Package notify envoie les e-mails liés aux commandes. Les envois partent en
// arrière-plan : une commande n'échoue jamais à cause d'un e-mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"storefront_back_end/internal/config"
	"storefront_back_end/internal/models"
)

const sendTimeout = 30 * time.Second

type Mailer struct {
	cfg  config.SMTPConfig
	log  *zap.Logger
	send func(ctx context.Context, msgs ...*mail.Msg) error
	wg   sync.WaitGroup
}

func NewMailer(cfg config.SMTPConfig, log *zap.Logger) *Mailer {
	m := &Mailer{cfg: cfg, log: log}
	m.send = m.dialAndSend
	return m
}

func (m *Mailer) dialAndSend(ctx context.Context, msgs ...*mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msgs...)
}

// OrderCreated prévient le client (si un e-mail est fourni) et l'administrateur.
// Une adresse client refusée n'empêche pas l'alerte admin ; l'erreur est retournée après.
func (m *Mailer) OrderCreated(_ context.Context, order models.Order) error {
	var (
		msgs      []*mail.Msg
		clientErr error
	)
	if order.Client.Email != "" {
		msg, err := m.newMsg(order.Client.Email,
			fmt.Sprintf("✅ Commande %s confirmée", shortID(order.ID)),
			confirmationTmpl, order)
		if err != nil {
			m.log.Warn("⚠️ Adresse client refusée, confirmation non envoyée",
				zap.String("order_id", order.ID), zap.String("email", order.Client.Email), zap.Error(err))
			clientErr = fmt.Errorf("confirmation client : %w", err)
		} else {
			msgs = append(msgs, msg)
		}
	}
	if m.cfg.AdminEmail != "" {
		msg, err := m.newMsg(m.cfg.AdminEmail,
			fmt.Sprintf("🛒 Nouvelle commande %s (%s €)", shortID(order.ID), order.Total.StringFixed(2)),
			adminAlertTmpl, order)
		if err != nil {
			m.dispatch(order.ID, msgs)
			return errors.Join(clientErr, fmt.Errorf("alerte admin : %w", err))
		}
		msgs = append(msgs, msg)
	}
	m.dispatch(order.ID, msgs)
	return clientErr
}

// StatusChanged prévient le client du nouveau statut
func (m *Mailer) StatusChanged(_ context.Context, order models.Order, from models.OrderStatus) error {
	if order.Client.Email == "" {
		return nil
	}
	msg, err := m.newMsg(order.Client.Email, statusSubject(order.Status), statusTmpl, statusView{
		Order:   order,
		From:    from,
		Message: statusMessage(order.Status),
		Color:   statusColor(order.Status),
	})
	if err != nil {
		return err
	}
	m.dispatch(order.ID, []*mail.Msg{msg})
	return nil
}

// Wait bloque jusqu'à la fin des envois en cours
func (m *Mailer) Wait() {
	m.wg.Wait()
}

func (m *Mailer) dispatch(orderID string, msgs []*mail.Msg) {
	if len(msgs) == 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := m.send(ctx, msgs...); err != nil {
			m.log.Error("❌ Erreur envoi e-mail", zap.String("order_id", orderID), zap.Error(err))
			return
		}
		m.log.Info("📤 E-mail envoyé", zap.String("order_id", orderID), zap.Int("messages", len(msgs)))
	}()
}

func (m *Mailer) newMsg(to, subject string, tmpl templateName, data any) (*mail.Msg, error) {
	body, err := render(tmpl, data)
	if err != nil {
		return nil, err
	}
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
