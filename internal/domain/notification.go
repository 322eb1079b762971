package domain

// NotificationType — тип изменения заказа для подписчиков.
type NotificationType string

const (
	NotificationCreate NotificationType = "CREATE"
	NotificationUpdate NotificationType = "UPDATE"
	NotificationDelete NotificationType = "DELETE"
)
