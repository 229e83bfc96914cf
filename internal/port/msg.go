package port

// Message type constants for the control-port protocol between the main
// process and its children. READY carries the spawning descriptor's stream
// id as correlation and no payload.
const (
	MsgReady byte = 0x01
	MsgQuit  byte = 0x02
	MsgData  byte = 0x10
)

// Handler consumes one inbound frame. Handlers run on the port's dispatch
// goroutine; they must not block on the port's own queue.
type Handler func(Frame)

// HandlerTable maps message types to handlers. Frames with no registered
// handler are discarded (forward compatibility).
type HandlerTable map[byte]Handler
