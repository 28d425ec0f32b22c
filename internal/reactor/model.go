// Package reactor implements the single-poll-instance-per-thread event
// loop of spec §4.H: a dense token space over golang.org/x/sys/unix's
// epoll, with two reserved tokens (Listener and Waker) and all other
// tokens addressing sessions.
package reactor

import "golang.org/x/sys/unix"

// Reserved token values. Session tokens are allocated starting at
// firstSessionToken.
const (
	TokenListener uint64 = 0
	TokenWaker    uint64 = 1

	firstSessionToken = 2
)

// Event is one dispatched occurrence from a poll iteration.
type Event struct {
	Token    uint64
	Readable bool
	Writable bool
	Error    bool
}

// Reactor owns one epoll instance, a waker eventfd, and the token
// allocator. It does not own sessions itself — callers pass a token when
// registering an fd and receive that token back in dispatched Events.
type Reactor struct {
	epfd     int
	wakeFd   int
	timeout  int // poll timeout, milliseconds
	maxEvent int // nevent: max events drained per poll call

	nextToken uint64
	tokens    map[int]uint64 // fd -> token, since EpollEvent carries only 64 bits of user data and we need both an fd and a wider token
	events    []unix.EpollEvent
}

// Config configures a new Reactor, named after the server.nevent /
// server.timeout (or worker.*) configuration fields of spec §6.
type Config struct {
	MaxEvents int
	TimeoutMS int
}
