package provider

import "sync"

// ConnectionObserver receives connection state changes. Notifications are for
// observability only and never influence Get/Set/Del.
type ConnectionObserver interface {
	ConnectionEstablished(addr string, reconnects int)
	ConnectionLost(addr string, err error)
}

// Observable is implemented by providers that report connection state.
type Observable interface {
	AddObserver(ConnectionObserver)
}

// Observers is a concurrency-safe fan-out list, embeddable by providers.
// It also counts connections per address so reconnects can be reported.
type Observers struct {
	mu    sync.RWMutex
	list  []ConnectionObserver
	dials map[string]int
}

func (o *Observers) AddObserver(obs ConnectionObserver) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	o.list = append(o.list, obs)
	o.mu.Unlock()
}

// Established records a successful connection to addr and notifies observers.
func (o *Observers) Established(addr string) {
	o.mu.Lock()
	if o.dials == nil {
		o.dials = make(map[string]int)
	}
	reconnects := o.dials[addr]
	o.dials[addr]++
	list := o.list
	o.mu.Unlock()

	for _, obs := range list {
		obs.ConnectionEstablished(addr, reconnects)
	}
}

// Lost notifies observers that addr became unreachable.
func (o *Observers) Lost(addr string, err error) {
	o.mu.RLock()
	list := o.list
	o.mu.RUnlock()

	for _, obs := range list {
		obs.ConnectionLost(addr, err)
	}
}
