package rules

import (
	"sync"
	"time"

	"github.com/agentauth/consent-pdp/model"
)

// documented defaults, applied when a principal has no configured limits
const (
	DefaultPerTransactionLimit  = 500.00
	DefaultDailyLimit           = 1000.00
	DefaultMonthlyLimit         = 10000.00
	DefaultRequireApprovalAbove = 100.00
)

// DefaultSpendingLimit provisions the documented default limits for a
// principal that has none configured yet.
func DefaultSpendingLimit(userId string) model.SpendingLimit {
	approvalThreshold := DefaultRequireApprovalAbove
	now := time.Now()
	return model.SpendingLimit{
		UserId:               userId,
		DailyLimit:           DefaultDailyLimit,
		MonthlyLimit:         DefaultMonthlyLimit,
		PerTransactionLimit:  DefaultPerTransactionLimit,
		RequireApprovalAbove: &approvalThreshold,
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// UsageTracker owns the per-principal spend counters. The aggregate
// checks and the counter increment happen under one per-principal lock,
// so concurrent authorizations can never jointly exceed a limit against
// a stale counter.
type UsageTracker struct {
	mutex   sync.Mutex
	records map[string]*usageEntry
}

type usageEntry struct {
	mutex  sync.Mutex
	record model.UsageRecord
}

func NewUsageTracker() *UsageTracker {
	tracker := new(UsageTracker)
	tracker.records = map[string]*usageEntry{}
	return tracker
}

// Reserve checks the daily and monthly aggregates and, when both pass,
// commits the increment atomically. It returns the denial reason of the
// first failing aggregate, or an empty string when the spend was
// reserved.
func (tracker *UsageTracker) Reserve(userId string, amount float64, limits model.SpendingLimit, now time.Time) string {
	entry := tracker.entry(userId, now)
	entry.mutex.Lock()
	defer entry.mutex.Unlock()

	rollover(&entry.record, now)

	if entry.record.DailySpent+amount > limits.DailyLimit {
		return model.ReasonDailyLimitExceeded
	}
	if entry.record.MonthlySpent+amount > limits.MonthlyLimit {
		return model.ReasonMonthlyLimitExceeded
	}

	entry.record.DailySpent += amount
	entry.record.MonthlySpent += amount
	entry.record.DailyTransactionCount++
	entry.record.MonthlyTransactionCount++
	return ""
}

// Usage returns a rolled-over snapshot of the principals counters.
func (tracker *UsageTracker) Usage(userId string, now time.Time) model.UsageRecord {
	entry := tracker.entry(userId, now)
	entry.mutex.Lock()
	defer entry.mutex.Unlock()

	rollover(&entry.record, now)
	return entry.record
}

func (tracker *UsageTracker) entry(userId string, now time.Time) *usageEntry {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	entry, ok := tracker.records[userId]
	if !ok {
		today := truncateToDay(now)
		entry = &usageEntry{record: model.UsageRecord{UserId: userId, LastDailyReset: today, LastMonthlyReset: today}}
		tracker.records[userId] = entry
	}
	return entry
}

// rollover lazily resets the counters when a stored reset date precedes
// the current period. Daily and monthly resets are independent.
func rollover(record *model.UsageRecord, now time.Time) {
	today := truncateToDay(now)

	if record.LastDailyReset.Before(today) {
		record.DailySpent = 0
		record.DailyTransactionCount = 0
		record.LastDailyReset = today
	}

	if record.LastMonthlyReset.Month() != today.Month() || record.LastMonthlyReset.Year() != today.Year() {
		record.MonthlySpent = 0
		record.MonthlyTransactionCount = 0
		record.LastMonthlyReset = today
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
