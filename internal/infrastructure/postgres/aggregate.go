package postgres

import (
	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
)

// aggregateBuilder folds a stream of joined rows back into nested user
// aggregates. Joining devices and appusage independently on user_id
// multiplies rows (D devices x U samples per user); the builder collapses
// that fan-out while preserving first-appearance order.
//
// Child dedup is keyed by the store-generated id when the row carries one;
// value equality is only the fallback for id-less rows, so two distinct
// devices with identical attributes do not collapse.
type aggregateBuilder struct {
	order        []int
	users        map[int]*entity.User
	seenDevices  map[int]map[int64]struct{}
	seenUsage    map[int]map[int64]struct{}
	seenBehavior map[int]struct{}
}

func newAggregateBuilder() *aggregateBuilder {
	return &aggregateBuilder{
		users:        make(map[int]*entity.User),
		seenDevices:  make(map[int]map[int64]struct{}),
		seenUsage:    make(map[int]map[int64]struct{}),
		seenBehavior: make(map[int]struct{}),
	}
}

// add folds one joined row into the aggregate set. The first row seen for a
// user fixes its scalar fields; later rows for the same user contribute
// children only.
func (b *aggregateBuilder) add(row joinRow) {
	u, ok := b.users[row.userID]
	if !ok {
		fresh := row.user()
		u = &fresh
		b.users[row.userID] = u
		b.order = append(b.order, row.userID)
	}

	if d, ok := row.device(); ok && !b.hasDevice(row.userID, u, d) {
		u.Devices = append(u.Devices, d)
	}
	if a, ok := row.appUsage(); ok && !b.hasUsage(row.userID, u, a) {
		u.AppUsage = append(u.AppUsage, a)
	}
	if bc, ok := row.behavior(); ok {
		if _, dup := b.seenBehavior[row.userID]; !dup {
			b.seenBehavior[row.userID] = struct{}{}
			u.UserBehavior = bc
		}
	}
}

func (b *aggregateBuilder) hasDevice(userID int, u *entity.User, d entity.Device) bool {
	if d.DeviceID != 0 {
		seen, ok := b.seenDevices[userID]
		if !ok {
			seen = make(map[int64]struct{})
			b.seenDevices[userID] = seen
		}
		if _, dup := seen[d.DeviceID]; dup {
			return true
		}
		seen[d.DeviceID] = struct{}{}
		return false
	}
	for _, have := range u.Devices {
		if have.EqualValues(d) {
			return true
		}
	}
	return false
}

func (b *aggregateBuilder) hasUsage(userID int, u *entity.User, a entity.AppUsage) bool {
	if a.AppUsageID != 0 {
		seen, ok := b.seenUsage[userID]
		if !ok {
			seen = make(map[int64]struct{})
			b.seenUsage[userID] = seen
		}
		if _, dup := seen[a.AppUsageID]; dup {
			return true
		}
		seen[a.AppUsageID] = struct{}{}
		return false
	}
	for _, have := range u.AppUsage {
		if have.EqualValues(a) {
			return true
		}
	}
	return false
}

// result returns the assembled aggregates in first-appearance order, which
// the ORDER BY user_id of the source query makes ascending user_id order.
func (b *aggregateBuilder) result() []entity.User {
	out := make([]entity.User, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.users[id])
	}
	return out
}
