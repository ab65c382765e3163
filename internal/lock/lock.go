// Package lock serializes mutations per ledger entity.
//
// A unit of work names every entity it will change (wallet, engagement, withdrawal
// request, statement) and acquires them together before its transaction starts.
// Keys are taken in sorted order so two units sharing entities cannot deadlock.
package lock

import (
	"context" // Cancellation and deadlines
	"errors"  // Sentinel errors
	"fmt"     // Key formatting
	"sort"    // Deterministic acquisition order
)

// ErrTimeout is returned when the keys could not be acquired in time.
var ErrTimeout = errors.New("lock acquisition timed out")

// Release frees every key taken by one Acquire call.
type Release func()

// Locker acquires exclusive ownership of a set of keys.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

func WalletKey(ownerID uint) string { return fmt.Sprintf("wallet:%d", ownerID) }
func EngagementKey(id uint) string  { return fmt.Sprintf("engagement:%d", id) }
func WithdrawalKey(id uint) string  { return fmt.Sprintf("withdrawal:%d", id) }
func StatementKey(id uint) string   { return fmt.Sprintf("statement:%d", id) }

// normalize sorts keys and drops duplicates and blanks.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// timeoutErr maps a context failure during acquisition to ErrTimeout.
func timeoutErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
