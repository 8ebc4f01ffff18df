package stream

import "sort"

// registry reference-counts symbol interest. It keeps the desired set
// (refs) apart from what has actually been sent on the current connection
// (wire) and what is waiting for a connection (pending). Once connected the
// wire set converges to exactly the symbols with a positive count.
type registry struct {
	refs    map[string]int
	pending map[string]struct{}
	wire    map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		refs:    make(map[string]int),
		pending: make(map[string]struct{}),
		wire:    make(map[string]struct{}),
	}
}

// acquire adds one reference to symbol. first reports a 0->1 transition;
// send reports that a subscribe instruction has to go on the wire now
// (first reference while the connection is open). A first reference on a
// closed connection lands in pending instead.
func (r *registry) acquire(symbol string, open bool) (first, send bool) {
	r.refs[symbol]++
	if r.refs[symbol] != 1 {
		return false, false
	}
	if open {
		r.wire[symbol] = struct{}{}
		return true, true
	}
	r.pending[symbol] = struct{}{}
	return true, false
}

// release drops one reference from symbol, flooring at zero. send reports
// that the symbol was wire-subscribed and an unsubscribe instruction is due.
func (r *registry) release(symbol string) (send bool) {
	n := r.refs[symbol]
	switch {
	case n == 0:
		return false
	case n > 1:
		r.refs[symbol] = n - 1
		return false
	}
	delete(r.refs, symbol)
	delete(r.pending, symbol)
	if _, ok := r.wire[symbol]; ok {
		delete(r.wire, symbol)
		return true
	}
	return false
}

// replay moves every pending symbol to the wire set and returns them sorted.
func (r *registry) replay() []string {
	symbols := sortedKeys(r.pending)
	for _, s := range symbols {
		r.wire[s] = struct{}{}
	}
	r.pending = make(map[string]struct{})
	return symbols
}

// disconnect forgets the wire set: everything still wanted becomes pending.
func (r *registry) disconnect() {
	for s := range r.refs {
		r.pending[s] = struct{}{}
	}
	r.wire = make(map[string]struct{})
}

func (r *registry) desired() []string {
	symbols := make([]string, 0, len(r.refs))
	for s := range r.refs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subscribe adds one reference to each of symbols. Only symbols whose count
// goes from zero to one produce a subscribe instruction: immediately when
// the connection is open, otherwise after the next successful connect (which
// Subscribe triggers). A client that is disconnected with no reconnect
// scheduled, e.g. after hitting the reconnect limit, is re-armed like
// Connect does. It never blocks on the network.
func (c *Client) Subscribe(symbols ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Warnf("livestream: subscribe after close ignored: %v", symbols)
		return
	}

	acquired, needConnect := false, false
	for _, s := range symbols {
		symbol := CanonicalSymbol(s)
		if symbol == "" {
			continue
		}
		acquired = true
		first, send := c.reg.acquire(symbol, c.state == StateOpen)
		switch {
		case send:
			c.sendLocked(true, symbol)
		case first:
			needConnect = true
		}
	}
	switch {
	case acquired && c.state == StateDisconnected && c.reconnectTimer == nil:
		// nothing is going to reconnect: the client gave up or was never
		// connected
		c.rearmLocked()
	case needConnect:
		c.connectLocked()
	}
}

// Unsubscribe removes one reference from each of symbols. Unknown symbols
// and symbols already at zero are ignored. A symbol reaching zero is
// unsubscribed on the wire if it was subscribed there.
func (c *Client) Unsubscribe(symbols ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range symbols {
		symbol := CanonicalSymbol(s)
		if symbol == "" {
			continue
		}
		if c.reg.release(symbol) {
			c.sendLocked(false, symbol)
		}
	}
}

// Subscriptions returns the sorted set of symbols with at least one reference.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.desired()
}

// RefCount returns the number of references currently held on symbol.
func (c *Client) RefCount(symbol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.refs[CanonicalSymbol(symbol)]
}

// sendLocked queues an (un)subscribe instruction on the current connection.
// If the queue is full the connection is dropped: the reconnect replays the
// whole desired set, so no instruction is lost for good.
func (c *Client) sendLocked(subscribe bool, symbol string) {
	s := c.sess
	if s == nil {
		return
	}
	msg, err := getSubChangeMessage(subscribe, symbol)
	if err != nil {
		c.logger.Errorf("livestream: could not encode sub change for %s: %v", symbol, err)
		return
	}
	select {
	case s.out <- msg:
	default:
		c.logger.Errorf("livestream: %v, dropping connection", ErrOutboundQueueFull)
		c.errMsg = ErrOutboundQueueFull.Error()
		go s.conn.close()
	}
}
