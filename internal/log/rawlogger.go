package log

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger records raw USB-IP traffic.
type RawLogger interface {
	Log(in bool, data []byte)
}

type rawLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

type nopRaw struct{}

func (nopRaw) Log(bool, []byte) {}

// NewRaw returns a RawLogger writing one line per chunk to w. A nil w
// discards everything.
func NewRaw(w io.Writer) RawLogger {
	if w == nil {
		return nopRaw{}
	}
	return &rawLogger{w: w, now: time.Now}
}

// Log writes a timestamped hex dump. in is client to server.
func (r *rawLogger) Log(in bool, data []byte) {
	if len(data) == 0 {
		return
	}
	dir := "S->C"
	if in {
		dir = "C->S"
	}

	dump := make([]byte, 0, len(data)*3)
	for i, b := range data {
		if i > 0 {
			dump = append(dump, ' ')
		}
		dump = append(dump, hex.EncodeToString([]byte{b})...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.w, "%s %s chunk: %d bytes, hex: %s\n", r.now().Format("2006/01/02 15:04:05"), dir, len(data), dump)
}
