package notify

import (
	"bytes"
	"html/template"

	"storefront_back_end/internal/models"
)

type templateName string

const (
	confirmationTmpl templateName = "confirmation"
	adminAlertTmpl   templateName = "admin_alert"
	statusTmpl       templateName = "status"
)

type statusView struct {
	Order   models.Order
	From    models.OrderStatus
	Message string
	Color   string
}

var templates = template.Must(template.New("mails").Funcs(template.FuncMap{
	"money": func(o models.OrderItem) string { return o.Subtotal().StringFixed(2) },
	"short": shortID,
}).Parse(`
{{define "items"}}
<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
	<thead>
		<tr style="background-color: #f0f0f0;">
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Produit</th>
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Quantité</th>
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Prix unitaire</th>
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Total</th>
		</tr>
	</thead>
	<tbody>
	{{range .Items}}
		<tr>
			<td style="padding: 10px; border: 1px solid #ddd;">{{.Name}}</td>
			<td style="padding: 10px; border: 1px solid #ddd;">{{.Quantity}}</td>
			<td style="padding: 10px; border: 1px solid #ddd;">{{.Price.StringFixed 2}}€</td>
			<td style="padding: 10px; border: 1px solid #ddd;">{{money .}}€</td>
		</tr>
	{{end}}
	</tbody>
	<tfoot>
		<tr>
			<td colspan="3" style="padding: 10px; text-align: right; font-weight: bold;">Total:</td>
			<td style="padding: 10px; font-weight: bold;">{{.Total.StringFixed 2}}€</td>
		</tr>
	</tfoot>
</table>
{{end}}

{{define "confirmation"}}<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Confirmation de commande</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Confirmation de votre commande #{{short .ID}}</h2>
		<p>Bonjour {{.Client.Name}},</p>
		<p>Votre commande a bien été enregistrée. Elle sera livrée à l'adresse suivante : {{.Client.Address}}</p>
		{{template "items" .}}
		<p style="margin-top: 30px; color: #555;">Cordialement,<br><strong>L'équipe boutique</strong></p>
	</div>
</body>
</html>{{end}}

{{define "admin_alert"}}<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Nouvelle commande</title></head>
<body style="font-family: Arial, sans-serif; padding: 20px;">
	<h2>Nouvelle commande #{{short .ID}}</h2>
	<p><strong>Client :</strong> {{.Client.Name}} ({{.Client.Phone}})</p>
	<p><strong>Adresse :</strong> {{.Client.Address}}</p>
	{{if .Client.Email}}<p><strong>E-mail :</strong> {{.Client.Email}}</p>{{end}}
	{{template "items" .}}
</body>
</html>{{end}}

{{define "status"}}<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Mise à jour de commande</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: #ffffff; padding: 30px; border-radius: 12px;">
		<div style="display: inline-block; padding: 12px 24px; background-color: {{.Color}}; color: #ffffff; border-radius: 25px; font-weight: 600;">
			{{.Order.Status}}
		</div>
		<p style="color: #333333; font-size: 16px;">{{.Message}}</p>
		<p><strong>Numéro de commande :</strong> #{{short .Order.ID}}</p>
		<p><strong>Montant total :</strong> {{.Order.Total.StringFixed 2}}€</p>
	</div>
</body>
</html>{{end}}
`))

func render(name templateName, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(name), data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func statusSubject(status models.OrderStatus) string {
	switch status {
	case models.StatusPaid:
		return "✅ Paiement confirmé"
	case models.StatusPreparing:
		return "🛠️ Votre commande est en préparation"
	case models.StatusShipped:
		return "📦 Votre commande a été expédiée"
	case models.StatusDone:
		return "🎉 Votre commande a été livrée"
	case models.StatusCancelled:
		return "❌ Commande annulée"
	default:
		return "📋 Mise à jour de votre commande"
	}
}

func statusMessage(status models.OrderStatus) string {
	switch status {
	case models.StatusPaid:
		return "Votre paiement a été confirmé avec succès. Nous préparons votre commande."
	case models.StatusPreparing:
		return "Votre commande est en cours de préparation."
	case models.StatusShipped:
		return "Bonne nouvelle ! Votre commande a été expédiée et est en route vers vous."
	case models.StatusDone:
		return "Votre commande a été livrée avec succès."
	case models.StatusCancelled:
		return "Votre commande a été annulée. Si vous avez des questions, n'hésitez pas à nous contacter."
	default:
		return "Le statut de votre commande a été mis à jour."
	}
}

func statusColor(status models.OrderStatus) string {
	switch status {
	case models.StatusPaid:
		return "#10b981"
	case models.StatusShipped:
		return "#3b82f6"
	case models.StatusDone:
		return "#8b5cf6"
	case models.StatusCancelled:
		return "#ef4444"
	default:
		return "#6b7280"
	}
}
