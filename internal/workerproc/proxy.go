package workerproc

// proxyState implements state.Store inside a worker subprocess by
// round-tripping every call to the parent process over conn, so
// concurrent process-pool nodes observe one serialised view of shared
// state — spec.md §4.3.2's IPC proxy requirement.
type proxyState struct {
	conn  *Conn
	local map[string]any // not read by any method: on a broken pipe Get returns def and Set/Delete are dropped
}

func newProxyState(conn *Conn, _ any) *proxyState {
	return &proxyState{conn: conn, local: map[string]any{}}
}

func (p *proxyState) Get(key string, def any) any {
	if err := p.conn.Send(Frame{Type: FrameStateGet, Key: key, Default: def}); err != nil {
		return def
	}
	reply, err := p.conn.Recv()
	if err != nil || reply.Type != FrameStateReply {
		return def
	}
	if reply.Value == nil {
		return def
	}
	return reply.Value
}

func (p *proxyState) Set(key string, value any) {
	_ = p.conn.Send(Frame{Type: FrameStateSet, Key: key, Value: value})
	_, _ = p.conn.Recv() // ack
}

func (p *proxyState) Update(key string, fn func(current any) any) any {
	// The parent owns the authoritative mutex; a worker cannot take a
	// local lock that would serialise against other workers or inline
	// nodes, so Update degrades to get-then-set over the same round trip
	// a Python worker process would need to make through the IPC proxy.
	// Callers that need atomic read-modify-write across process-pool
	// workers should prefer inline nodes for that step.
	cur := p.Get(key, nil)
	next := fn(cur)
	p.Set(key, next)
	return next
}

func (p *proxyState) Delete(key string) {
	_ = p.conn.Send(Frame{Type: FrameStateDelete, Key: key})
	_, _ = p.conn.Recv() // ack
}
