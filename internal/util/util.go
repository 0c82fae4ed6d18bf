package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID is sortable (nice for DB indexes and dashboards)
func newID(prefix string) string {
	t := time.Now().UTC()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewDeliveryID() string   { return newID("wh") }
func NewDeadLetterID() string { return newID("dl") }
func NewChargeID() string     { return newID("ch") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
