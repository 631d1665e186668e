package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratio passes N of every D events. The zero value passes everything.
type ratio struct{ N, D int64 }

var defaultDebugRatio = ratio{N: 1, D: 50}

type sampler struct {
	r   atomic.Pointer[ratio]
	seq atomic.Int64
}

func newSampler(r ratio) *sampler {
	s := &sampler{}
	s.set(r)
	return s
}

func (s *sampler) set(r ratio) {
	if r.N <= 0 || r.D <= 0 {
		r = ratio{}
	}
	r.N = min(r.N, r.D)
	s.r.Store(&r)
	s.seq.Store(0)
}

func (s *sampler) allow() bool {
	r := s.r.Load()
	if r == nil || r.D == 0 {
		return true
	}
	return (s.seq.Add(1)-1)%r.D < r.N
}

// parseRatio reads "N/D" or "D" (meaning 1/D). "0" and "off" disable
// sampling; anything unreadable falls back to the default.
func parseRatio(raw string) ratio {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return defaultDebugRatio
	case "0", "off", "none":
		return ratio{}
	}
	num, den, found := strings.Cut(raw, "/")
	if !found {
		num, den = "1", raw
	}
	n, err1 := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
	d, err2 := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return defaultDebugRatio
	}
	return ratio{N: n, D: d}
}
