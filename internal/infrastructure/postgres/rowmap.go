package postgres

import (
	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
)

// joinRow is the flattened tuple produced by the bulk listing join, in the
// exact column order of listQuery. Child columns are pointers because the
// outer joins emit NULLs for users missing that relation.
type joinRow struct {
	userID int
	age    int
	gender string

	deviceID    *int64
	deviceModel *string
	deviceOS    *string
	deviceApps  *int

	appUsageID   *int64
	appUsageTime *int
	screenOnTime *float64
	batteryDrain *float64
	dataUsage    *float64

	behaviorID    *int64
	behaviorClass *int
}

// user maps the scalar columns into a fresh aggregate with empty child
// lists. Lists start non-nil so absent relations serialize as [].
func (r joinRow) user() entity.User {
	return entity.User{
		UserID:   r.userID,
		Age:      r.age,
		Gender:   r.gender,
		Devices:  []entity.Device{},
		AppUsage: []entity.AppUsage{},
	}
}

// device maps the device columns. A NULL device model is a join miss, not a
// device with empty attributes, so ok is false and the row contributes no
// device.
func (r joinRow) device() (entity.Device, bool) {
	if r.deviceModel == nil {
		return entity.Device{}, false
	}
	d := entity.Device{DeviceModel: *r.deviceModel}
	if r.deviceID != nil {
		d.DeviceID = *r.deviceID
	}
	if r.deviceOS != nil {
		d.OperatingSystem = *r.deviceOS
	}
	if r.deviceApps != nil {
		d.NumberOfAppsInstalled = *r.deviceApps
	}
	return d, true
}

// appUsage maps the usage-sample columns; NULL app_usage_time is a join miss.
func (r joinRow) appUsage() (entity.AppUsage, bool) {
	if r.appUsageTime == nil {
		return entity.AppUsage{}, false
	}
	a := entity.AppUsage{AppUsageTime: *r.appUsageTime}
	if r.appUsageID != nil {
		a.AppUsageID = *r.appUsageID
	}
	if r.screenOnTime != nil {
		a.ScreenOnTime = *r.screenOnTime
	}
	if r.batteryDrain != nil {
		a.BatteryDrain = *r.batteryDrain
	}
	if r.dataUsage != nil {
		a.DataUsage = *r.dataUsage
	}
	return a, true
}

// behavior maps the classification columns. A user without a behavior row
// keeps the zero value, which reads as class 0 by convention.
func (r joinRow) behavior() (entity.UserBehavior, bool) {
	if r.behaviorClass == nil {
		return entity.UserBehavior{}, false
	}
	b := entity.UserBehavior{UserBehaviorClass: *r.behaviorClass}
	if r.behaviorID != nil {
		b.BehaviorID = *r.behaviorID
	}
	return b, true
}
