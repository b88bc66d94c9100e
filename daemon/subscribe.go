package daemon

// Subscribe returns a channel that receives the latest status after every
// state change. Slow readers only ever see the newest value. Call cancel
// to unsubscribe.
func (d *Daemon) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)
	d.subMu.Lock()
	d.subs[ch] = struct{}{}
	d.subMu.Unlock()

	var once bool
	cancel := func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(d.subs, ch)
		close(ch)
	}
	return ch, cancel
}

func (d *Daemon) publish(st Status) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for ch := range d.subs {
		// drop a stale unread value
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
