package ws

const (
	// client - server
	MsgPing = "ping"

	// server - client
	MsgReady    = "ready"
	MsgSnapshot = "snapshot"
	MsgEvent    = "event"
	MsgPong     = "pong"
	MsgError    = "error"
)
