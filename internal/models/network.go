package models

import (
	"time"
)

type ConnectionType string

const (
	ConnectionTypeWifi     ConnectionType = "wifi"
	ConnectionTypeCellular ConnectionType = "cellular"
	ConnectionTypeEthernet ConnectionType = "ethernet"
	ConnectionTypeUnknown  ConnectionType = "unknown"
	ConnectionTypeNone     ConnectionType = "none"
)

// NetworkStatus is the last observed connectivity snapshot.
type NetworkStatus struct {
	IsConnected         bool           `json:"is_connected"`
	ConnectionType      ConnectionType `json:"connection_type"`
	IsInternetReachable bool           `json:"is_internet_reachable"`
	LastCheckedAt       time.Time      `json:"last_checked_at"`
}

// Online reports whether requests should be sent immediately rather
// than queued.
func (s NetworkStatus) Online() bool {
	return s.IsConnected && s.IsInternetReachable
}
