package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "abcd", SanitizeLimit("ab\x00c\u200bdé", 4))
	assert.Equal(t, "keep\ttab", SanitizeLimit("keep\ttab", 100))
	assert.Equal(t, "", SanitizeLimit("anything", 0))
	assert.Equal(t, "ééé", SanitizeLimit("éééé", 3))
}

func TestRIDs(t *testing.T) {
	rid := BuildRID(100, -1001, 42)
	assert.Equal(t, "100:-1001:42", rid)
	assert.Equal(t, "2s.-rt.16", CompactRID(rid))
	assert.Equal(t, "abc", CompactRID(" abc "))
	assert.Equal(t, "1:x:2", CompactRID("1:x:2"))
	assert.Equal(t, "", CompactRID(""))
}

func TestSummarizeStrings(t *testing.T) {
	s, cut := SummarizeStrings([]string{"a", "b", "c"}, 2)
	assert.Equal(t, "a, b", s)
	assert.True(t, cut)

	s, cut = SummarizeStrings([]string{"a"}, 2)
	assert.Equal(t, "a", s)
	assert.False(t, cut)
}

func TestContextMeta(t *testing.T) {
	ctx := WithUpdateMeta(context.Background(), 5, 7, 9)
	ctx = WithUser(WithHandler(ctx, "cmd:/start"), 8)
	assert.Equal(t, 5, UpdateIDFrom(ctx))
	assert.Equal(t, int64(8), UserIDFrom(ctx))
	assert.Equal(t, int64(9), ChatIDFrom(ctx))
	assert.Equal(t, "cmd:/start", HandlerFrom(ctx))
	assert.Same(t, L, FromContext(context.Background()))
}

func TestParseRatio(t *testing.T) {
	assert.Equal(t, ratio{N: 1, D: 10}, parseRatio("10"))
	assert.Equal(t, ratio{N: 3, D: 4}, parseRatio(" 3/4 "))
	assert.Equal(t, ratio{}, parseRatio("off"))
	assert.Equal(t, defaultDebugRatio, parseRatio("x/y"))
	assert.Equal(t, defaultDebugRatio, parseRatio(""))
}

func TestSamplerPassesShare(t *testing.T) {
	s := newSampler(ratio{N: 1, D: 4})
	passed := 0
	for range 40 {
		if s.allow() {
			passed++
		}
	}
	assert.Equal(t, 10, passed)

	s.set(ratio{})
	assert.True(t, s.allow())
}
