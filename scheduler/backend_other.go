//go:build unix && !linux

package scheduler

func AvailableBackends() []Backend {
	return []Backend{BackendPoll}
}

func newPoller(b Backend) (poller, error) {
	switch b {
	case BackendAuto, BackendPoll:
		return newPollPoller()
	case BackendEpoll:
		return nil, ErrUnsupported
	}
	return nil, ErrUnknownBackend
}
