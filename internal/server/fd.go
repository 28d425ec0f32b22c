package server

import (
	"net"

	"golang.org/x/sys/unix"
)

// listenerFd extracts a duplicated, non-blocking raw file descriptor from
// ln, suitable for registering directly with the reactor's epoll instance
// instead of going through Go's runtime-integrated net.Listener.Accept,
// which hides the socket behind the runtime's own poller.
func listenerFd(ln *net.TCPListener) (int, error) {
	sc, err := ln.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	var dupErr error
	err = sc.Control(func(rawFd uintptr) {
		fd, dupErr = unix.Dup(int(rawFd))
	})
	if err != nil {
		return 0, err
	}
	if dupErr != nil {
		return 0, dupErr
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, err
	}
	return fd, nil
}

// acceptOne accepts a single pending connection on fd, returning
// unix.EAGAIN when none is pending. The listener calls it repeatedly for
// one readable event and stops at EAGAIN.
func acceptOne(fd int) (connFd int, addr net.Addr, err error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return 0, nil, err
	}
	return nfd, sockaddrToAddr(sa), nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
