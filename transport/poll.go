package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrInterrupted marks a poll that returned because of EINTR; callers
// should treat it as "nothing happened, try again" (§4.6: "On EINTR
// returns 0").
var ErrInterrupted = errors.New("transport: interrupted")

// WaitReadable polls fds for readability with the given millisecond
// timeout, the same primitive the original C client uses (poll(2)) and
// the same primitive this port uses for the server's select loop in
// place of select(2) — poll scales better with MaxClients and needs no
// fd_set bit-twiddling.
//
// It returns the ready descriptors. On timeout it returns (nil, nil).
// On EINTR it returns (nil, ErrInterrupted).
func WaitReadable(fds []int, timeoutMs int) (readyFDs []int, err error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	n, err := unix.Poll(pfds, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, ErrInterrupted
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ready := make([]int, 0, n)
	for _, pfd := range pfds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, int(pfd.Fd))
		}
	}
	return ready, nil
}
