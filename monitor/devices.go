// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package monitor

// Device is a selectable sensor node.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RSSI     int    `json:"rssi"`
	Location string `json:"location"`
}

// DefaultDeviceID is selected at startup unless configured otherwise.
const DefaultDeviceID = "ESP32-GB-01"

var devices = []Device{
	{ID: "ESP32-GB-01", Name: "Chamber A", RSSI: -58, Location: "Gudang 1"},
	{ID: "ESP32-GB-02", Name: "Chamber B", RSSI: -67, Location: "Gudang 2"},
	{ID: "ESP32-GB-03", Name: "Chamber C", RSSI: -71, Location: "QC Roastery"},
}

// Devices returns the known devices.
func Devices() []Device {
	return append([]Device(nil), devices...)
}

// LookupDevice finds a device by ID.
func LookupDevice(id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}
