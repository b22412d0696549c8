package domain

// Nombres de evento aceptados por la cola de correo.
const (
	EventRegisterEmail       = "REGISTER_EMAIL"
	EventForgetPasswordEmail = "FORGET_PASSWORD_EMAIL"
)

// EmailEvent es el mensaje que se encola para el worker de correo.
type EmailEvent struct {
	TraceID   string `json:"trace_id"`
	To        string `json:"to"`
	EventName string `json:"event_name"`
	OTP       string `json:"otp"`
	FullName  string `json:"full_name"`
}
