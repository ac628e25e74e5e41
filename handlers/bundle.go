package handlers

// HandlerBundle groups all the endpoint handlers into one struct.
type HandlerBundle struct {
	Bookings        *BookingHandler
	ScheduleChanges *ScheduleChangeHandler
	Payments        *PaymentHandler
	Directory       *DirectoryHandler
	Controls        *ControlsHandler
}
