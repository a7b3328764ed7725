package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// StableTradeID derives a deterministic trade ID from fields the data-api
// always returns, so re-polls of the same fill map to the same ID.
func StableTradeID(txHash, asset string, outcomeIndex int, side, wallet string, ts int64) string {
	parts := []string{
		txHash,
		asset,
		fmt.Sprintf("%d", outcomeIndex),
		side,
		wallet,
		fmt.Sprintf("%d", ts),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// TradeAlertKey is the watcher cooldown key: one alert per wallet+market
// per cooldown period.
func TradeAlertKey(wallet, conditionID string) string {
	return wallet + ":" + conditionID
}

// SignalKey is the publisher dedupe key. The bucket is the newest
// contributing sample timestamp truncated to the signal's window, so a
// re-run over the same window derives the same key and is suppressed by
// cooldown instead of locking.
func SignalKey(alertType, conditionID string, latestTS int64, window time.Duration) string {
	bucket := latestTS
	if sec := int64(window / time.Second); sec > 0 {
		bucket = latestTS - latestTS%sec
	}
	return fmt.Sprintf("%s:%s:%d", alertType, conditionID, bucket)
}

// DayKeyUTC buckets a unix timestamp into its UTC day, e.g. "2025-11-04".
func DayKeyUTC(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
