package reactor

import (
	stdErrors "errors"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Poll after Close has been called.
var ErrClosed = stdErrors.New("reactor: closed")

// New creates an epoll instance and an eventfd-backed waker, registering
// the waker at TokenWaker immediately.
func New(cfg Config) (*Reactor, error) {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1024
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = 1000
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	r := &Reactor{
		epfd:      epfd,
		wakeFd:    wakeFd,
		timeout:   cfg.TimeoutMS,
		maxEvent:  cfg.MaxEvents,
		nextToken: firstSessionToken,
		tokens:    make(map[int]uint64),
		events:    make([]unix.EpollEvent, cfg.MaxEvents),
	}
	if err := r.register(wakeFd, TokenWaker, unix.EPOLLIN); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// RegisterListener registers the bound listener socket at TokenListener for
// readable (incoming connection) events.
func (r *Reactor) RegisterListener(fd int) error {
	return r.register(fd, TokenListener, unix.EPOLLIN)
}

// NextToken allocates a fresh session token; tokens are never reused while
// the reactor is alive, matching the "dense slab" token space design note
// loosely — density is approximated by monotonic allocation since Go's GC
// makes an explicit freelist unnecessary for this purpose.
func (r *Reactor) NextToken() uint64 {
	t := r.nextToken
	r.nextToken++
	return t
}

// RegisterSession registers fd under token with the given interest mask
// (typically unix.EPOLLIN, optionally OR'd with unix.EPOLLOUT).
func (r *Reactor) RegisterSession(fd int, token uint64, interest uint32) error {
	return r.register(fd, token, interest)
}

// ModifySession updates the interest mask for an already-registered fd.
func (r *Reactor) ModifySession(fd int, token uint64, interest uint32) error {
	r.tokens[fd] = token
	ev := unix.EpollEvent{Events: interest, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Unregister removes fd from the epoll instance and its token mapping.
func (r *Reactor) Unregister(fd int) error {
	delete(r.tokens, fd)
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (r *Reactor) register(fd int, token uint64, interest uint32) error {
	r.tokens[fd] = token
	ev := unix.EpollEvent{Events: interest, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// TokenFor returns the token currently associated with fd.
func (r *Reactor) TokenFor(fd int) (uint64, bool) {
	t, ok := r.tokens[fd]
	return t, ok
}

// Poll waits up to the configured timeout for events and dispatches each
// via visit. The waker is drained internally, matching the reactor's
// "waker is level-triggered: drain all pending queues" contract — it is
// the caller's job to drain whatever out-of-band queues the wake signaled,
// Poll only clears the eventfd counter.
func (r *Reactor) Poll(visit func(fd int, ev Event)) error {
	n, err := unix.EpollWait(r.epfd, r.events, r.timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		ev := r.events[i]
		fd := int(ev.Fd)

		if fd == r.wakeFd {
			r.drainWaker()
			continue
		}

		token, known := r.tokens[fd]
		if !known {
			continue
		}
		e := Event{
			Token:    token,
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Error:    ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
		visit(fd, e)
	}
	return nil
}

func (r *Reactor) drainWaker() {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

// Wake signals the waker eventfd, causing a blocked Poll to return
// promptly so the caller can drain newly-enqueued cross-thread work.
func (r *Reactor) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(r.wakeFd, buf[:])
	return err
}

// Close releases the epoll and waker file descriptors.
func (r *Reactor) Close() error {
	unix.Close(r.wakeFd)
	return unix.Close(r.epfd)
}
