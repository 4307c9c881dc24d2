package visitor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var hexHash = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestHashAtKnownValue(t *testing.T) {
	h := NewHasher("salt")
	at := time.Date(2026, 2, 3, 23, 59, 59, 0, time.UTC)

	sum := sha256.Sum256([]byte("salt:1.2.3.4:Mozilla/5.0:2026-02-03"))
	assert.Equal(t, hex.EncodeToString(sum[:])[:16], h.HashAt("1.2.3.4", "Mozilla/5.0", at))
}

func TestHashUsesUTCDate(t *testing.T) {
	h := NewHasher("salt")
	tokyo := time.FixedZone("JST", 9*3600)

	// 2026-02-04 01:00 in Tokyo is still 2026-02-03 in UTC.
	local := time.Date(2026, 2, 4, 1, 0, 0, 0, tokyo)
	utc := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, h.HashAt("a", "b", utc), h.HashAt("a", "b", local))
}

func TestHashRotatesAtMidnight(t *testing.T) {
	h := NewHasher("salt")
	before := time.Date(2026, 2, 3, 23, 59, 59, 999, time.UTC)
	after := before.Add(time.Microsecond)

	assert.NotEqual(t, h.HashAt("a", "b", before), h.HashAt("a", "b", after))
}

func TestSaltChangesHash(t *testing.T) {
	at := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	assert.NotEqual(t, NewHasher("one").HashAt("a", "b", at), NewHasher("two").HashAt("a", "b", at))
}

func TestHashNow(t *testing.T) {
	h := NewHasher("salt")
	h.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }

	assert.Equal(t, h.HashAt("a", "b", time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)), h.Hash("a", "b"))
}

func TestProperty_DailyIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	h := NewHasher("property-salt")
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	dayAt := func(day, second int) time.Time {
		return epoch.AddDate(0, 0, day).Add(time.Duration(second) * time.Second)
	}

	properties.Property("same inputs on the same UTC date hash identically", prop.ForAll(
		func(addr, ua string, day, s1, s2 int) bool {
			a := h.HashAt(addr, ua, dayAt(day, s1))
			b := h.HashAt(addr, ua, dayAt(day, s2))
			return a == b && hexHash.MatchString(a)
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(0, 20000),
		gen.IntRange(0, 86399),
		gen.IntRange(0, 86399),
	))

	properties.Property("same inputs on different UTC dates hash differently", prop.ForAll(
		func(addr, ua string, day, gap, s1, s2 int) bool {
			return h.HashAt(addr, ua, dayAt(day, s1)) != h.HashAt(addr, ua, dayAt(day+gap, s2))
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(0, 20000),
		gen.IntRange(1, 3650),
		gen.IntRange(0, 86399),
		gen.IntRange(0, 86399),
	))

	properties.TestingRun(t)
}
