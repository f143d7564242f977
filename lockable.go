package qtbridge

import "sync"

type channelLocker struct {
	L chan struct{}
	U chan struct{}
}

func newChannelLocker() *channelLocker {
	return &channelLocker{
		L: make(chan struct{}),
		U: make(chan struct{}),
	}
}

func (cl *channelLocker) Lock() {
	cl.L <- struct{}{}
}

func (cl *channelLocker) Unlock() {
	cl.U <- struct{}{}
}

// RunLockable executes Run() in a separate goroutine and returns a
// sync.Locker for mutually exclusive execution with Process(). Locking
// guarantees that Process() is not and will not run until unlocked, so
// registered backend objects can be modified safely while holding it.
//
// RunLockable also returns a channel, which receives one error value and
// closes when the connection is closed.
func (c *Connection) RunLockable() (sync.Locker, <-chan error) {
	lock := newChannelLocker()
	errChannel := make(chan error, 1)

	c.ensureHandler()
	go func() {
		defer close(errChannel)
		for {
			select {
			case _, open := <-c.processSignal:
				if !open {
					errChannel <- c.err
					return
				} else if err := c.Process(); err != nil {
					errChannel <- err
					return
				}
			case <-lock.L:
				<-lock.U
			}
		}
	}()

	return lock, errChannel
}
