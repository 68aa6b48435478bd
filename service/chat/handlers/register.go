package handlers

import "PPGateway/service/chat"

// RegisterAll wires every inbound client event into d.
func RegisterAll(d *chat.Dispatcher) {
	d.Register(
		NewConversationRooms(),
		NewGroupRooms(),
		TypingHandler{},
		StatusHandler{},
	)
}
