// Package notifications defines the notification sent to the users and the
// interface every delivery backend implements.
package notifications

import "context"

// Notification is a message addressed to a single recipient. Body holds the
// HTML version and PlainBody the text fallback.
type Notification struct {
	ToName    string
	ToAddress string
	ReplyTo   string
	Subject   string
	Body      string
	PlainBody string
}

// NotificationService is implemented by the delivery backends.
type NotificationService interface {
	New(conf any) error
	SendNotification(context.Context, *Notification) error
}
