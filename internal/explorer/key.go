package explorer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// comprehensiveSuffix distinguishes comprehensive entries from plain ones
// under the same query parameters.
const comprehensiveSuffix = "_comprehensive"

// cacheKey returns a deterministic key for a stats query. Time controls are
// sorted so the key is independent of their order.
func cacheKey(fen string, minRating, maxRating int, timeControls []string) string {
	tcs := append([]string(nil), timeControls...)
	sort.Strings(tcs)
	data := fmt.Sprintf("%s_%d_%d_%s", fen, minRating, maxRating, strings.Join(tcs, "_"))
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ratingBrackets expands an inclusive rating range into the explorer's
// 100-point rating brackets (1600, 1700, ...).
func ratingBrackets(minRating, maxRating int) []string {
	var brackets []string
	for r := minRating; r <= maxRating; r += 100 {
		brackets = append(brackets, strconv.Itoa(r))
	}
	return brackets
}
