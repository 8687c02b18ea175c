package exchange

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxStrategyIDLength keeps encoded tags inside the 36 character client order
// id limit venues commonly enforce.
const MaxStrategyIDLength = 16

// EncodeOrderTag builds a client order id of the form
// <strategy>-<expiry unix>-<random>, carrying ownership and expiration for
// venues that store neither.
func EncodeOrderTag(strategyID string, expiry time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", strategyID, expiry.Unix(), suffix)
}

// DecodeOrderTag parses a tag built by EncodeOrderTag. ok is false for ids
// placed by anything else.
func DecodeOrderTag(tag string) (strategyID string, expiry time.Time, ok bool) {
	last := strings.LastIndexByte(tag, '-')
	if last <= 0 || len(tag)-last-1 != 8 {
		return "", time.Time{}, false
	}
	mid := strings.LastIndexByte(tag[:last], '-')
	if mid <= 0 {
		return "", time.Time{}, false
	}
	unix, err := strconv.ParseInt(tag[mid+1:last], 10, 64)
	if err != nil || unix <= 0 {
		return "", time.Time{}, false
	}
	return tag[:mid], time.Unix(unix, 0).UTC(), true
}
