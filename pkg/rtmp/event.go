package rtmp

import "sol/pkg/hub"

// Terminated is posted to the server's event loop when a session's
// connection goroutine exits, so the server can drop it from its session
// table.
type Terminated struct {
	SessionId string
}

// PublishStarted is posted once a publish call has been granted ownership
// of a channel.
type PublishStarted struct {
	SessionId string
	Channel   hub.ChannelID
}

// PublishStopped is posted when a publishing session disconnects or is
// otherwise released from its channel.
type PublishStopped struct {
	SessionId string
	Channel   hub.ChannelID
}

// PlayStarted is posted once a play call has attached a subscriber to a
// channel.
type PlayStarted struct {
	SessionId string
	Channel   hub.ChannelID
}

// PlayStopped is posted when a playing session disconnects or unsubscribes.
type PlayStopped struct {
	SessionId string
	Channel   hub.ChannelID
}

// ErrorOccurred carries the error that made a session stop handling
// messages, for server-level logging. The session closes its connection
// right after posting it.
type ErrorOccurred struct {
	SessionId string
	Err       error
	Context   string
}
