package hub

import "fmt"

// ChatLine formats an inbound payload for fan-out, tagged with the sender.
func ChatLine(clientID, data string) []byte {
	return fmt.Appendf(nil, "Client #%s: %s", clientID, data)
}

// DepartureNotice is the synthetic message sent to the remaining clients
// when a connection closes.
func DepartureNotice(clientID string) []byte {
	return fmt.Appendf(nil, "Client #%s has left the chat", clientID)
}
