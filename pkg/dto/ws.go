package dto

// WebSocket message types.
const (
	WSTypeCheckIn = "check_in"
	WSTypeDisplay = "display"
)

// WSMessage is a real-time message pushed to dashboard clients.
type WSMessage struct {
	Type    string      `json:"type"`
	KioskID string      `json:"kiosk_id"`
	Data    interface{} `json:"data"`
}
