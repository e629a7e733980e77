package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceEqualValuesIgnoresIDAndOwner(t *testing.T) {
	a := Device{DeviceID: 1, UserID: 5, DeviceModel: "Pixel 5", OperatingSystem: "Android", NumberOfAppsInstalled: 40}
	b := Device{DeviceID: 2, UserID: 9, DeviceModel: "Pixel 5", OperatingSystem: "Android", NumberOfAppsInstalled: 40}

	assert.True(t, a.EqualValues(b))

	b.DeviceModel = "Pixel 6"
	assert.False(t, a.EqualValues(b))
}

func TestAppUsageEqualValuesIgnoresIDAndOwner(t *testing.T) {
	a := AppUsage{AppUsageID: 1, UserID: 5, AppUsageTime: 100, ScreenOnTime: 2.5, BatteryDrain: 800, DataUsage: 500}
	b := AppUsage{AppUsageID: 2, UserID: 9, AppUsageTime: 100, ScreenOnTime: 2.5, BatteryDrain: 800, DataUsage: 500}

	assert.True(t, a.EqualValues(b))

	b.DataUsage = 501
	assert.False(t, a.EqualValues(b))
}

func TestUserMarshalsEmptyChildListsAsArrays(t *testing.T) {
	u := User{UserID: 1, Age: 30, Gender: "M", Devices: []Device{}, AppUsage: []AppUsage{}}

	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"devices":[]`)
	assert.Contains(t, string(b), `"app_usage":[]`)
	assert.Contains(t, string(b), `"user_behavior":{`)
}

func TestNestedChildOmitsOwnerAndZeroID(t *testing.T) {
	b, err := json.Marshal(Device{DeviceModel: "Pixel 5", OperatingSystem: "Android"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "device_id")
	assert.NotContains(t, string(b), "user_id")
}
