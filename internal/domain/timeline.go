package domain

import "time"

// Типы событий в истории заказа.
const (
	TimelineOrderCreated           = "OrderCreated"
	TimelineOrderUpdated           = "OrderUpdated"
	TimelineOrderRemoved           = "OrderRemoved"
	TimelineReservationIncident    = "ReservationIncident"
	TimelineReservationCompensated = "ReservationCompensated"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
