// Package mailtemplates provides the email templates of the billing
// notifications, along with utilities for rendering email content.
package mailtemplates

import "github.com/mailclean/saas-backend/notifications"

// PaymentConfirmedNotification is the notification sent when an invoice of
// the subscription is paid.
var PaymentConfirmedNotification = MailTemplate{
	File: "payment_confirmed",
	Placeholder: notifications.Notification{
		Subject: "Pagamento confirmado - MailClean {{.PlanName}}",
		PlainBody: `Olá {{.Name}},

Recebemos o pagamento da sua assinatura do plano {{.PlanName}}.
{{if .RenewalDate}}A próxima renovação está prevista para {{.RenewalDate}}.
{{end}}
Acesse o painel: {{.Link}}`,
	},
	WebAppURI: "/dashboard",
}

// PaymentFailedNotification is the notification sent when Stripe can not
// charge the subscription.
var PaymentFailedNotification = MailTemplate{
	File: "payment_failed",
	Placeholder: notifications.Notification{
		Subject: "Falha no pagamento da sua assinatura MailClean",
		PlainBody: `Olá {{.Name}},

Não conseguimos processar o pagamento da sua assinatura do plano {{.PlanName}}.
Atualize sua forma de pagamento: {{.Link}}`,
	},
	WebAppURI: "/dashboard/billing",
}

// SubscriptionCanceledNotification is the notification sent when the
// subscription ends and the user goes back to the free plan.
var SubscriptionCanceledNotification = MailTemplate{
	File: "subscription_canceled",
	Placeholder: notifications.Notification{
		Subject: "Sua assinatura MailClean foi cancelada",
		PlainBody: `Olá {{.Name}},

Sua assinatura do plano {{.PlanName}} foi cancelada e sua conta voltou para o plano Gratuito.
Veja os planos: {{.Link}}`,
	},
	WebAppURI: "/dashboard/billing",
}
