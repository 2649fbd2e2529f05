package proxy

// InFlight is the number of submits and unlinks still awaiting a reply.
func (p *Parser) InFlight() (submits, unlinks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dirs), len(p.unlinks)
}
