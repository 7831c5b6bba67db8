//go:build linux

package scheduler

// AvailableBackends lists the backends usable on this platform, preferred first.
func AvailableBackends() []Backend {
	return []Backend{BackendEpoll, BackendPoll}
}

func newPoller(b Backend) (poller, error) {
	switch b {
	case BackendAuto, BackendEpoll:
		return newEpollPoller()
	case BackendPoll:
		return newPollPoller()
	}
	return nil, ErrUnknownBackend
}
