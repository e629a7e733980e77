package entity

// User is the aggregate root: one row in the users table plus every
// device, app-usage sample, and behavior classification that references it.
// UserID is caller-supplied, never generated by the store.
type User struct {
	UserID       int          `json:"user_id"`
	Age          int          `json:"age"`
	Gender       string       `json:"gender"`
	Devices      []Device     `json:"devices"`
	AppUsage     []AppUsage   `json:"app_usage"`
	UserBehavior UserBehavior `json:"user_behavior"`
}

// Device is one row in the devices table. DeviceID is store-generated.
// UserID is populated only on flat (non-nested) representations.
type Device struct {
	DeviceID              int64  `json:"device_id,omitempty"`
	UserID                int    `json:"user_id,omitempty"`
	DeviceModel           string `json:"device_model"`
	OperatingSystem       string `json:"operating_system"`
	NumberOfAppsInstalled int    `json:"number_of_apps_installed"`
}

// AppUsage is one daily usage sample in the appusage table.
type AppUsage struct {
	AppUsageID   int64   `json:"app_usage_id,omitempty"`
	UserID       int     `json:"user_id,omitempty"`
	AppUsageTime int     `json:"app_usage_time"`
	ScreenOnTime float64 `json:"screen_on_time"`
	BatteryDrain float64 `json:"battery_drain"`
	DataUsage    float64 `json:"data_usage"`
}

// UserBehavior is the at-most-one classification row per user.
// A user without a stored row reads back as class 0.
type UserBehavior struct {
	BehaviorID        int64 `json:"behavior_id,omitempty"`
	UserID            int   `json:"user_id,omitempty"`
	UserBehaviorClass int   `json:"user_behavior_class"`
}

// EqualValues compares every attribute except the generated id and owner.
// Used as the dedup fallback when a joined row carries no device id.
func (d Device) EqualValues(o Device) bool {
	return d.DeviceModel == o.DeviceModel &&
		d.OperatingSystem == o.OperatingSystem &&
		d.NumberOfAppsInstalled == o.NumberOfAppsInstalled
}

// EqualValues compares every attribute except the generated id and owner.
func (a AppUsage) EqualValues(o AppUsage) bool {
	return a.AppUsageTime == o.AppUsageTime &&
		a.ScreenOnTime == o.ScreenOnTime &&
		a.BatteryDrain == o.BatteryDrain &&
		a.DataUsage == o.DataUsage
}
