package client

import (
	"sync"
	"time"
)

// State is the client's externally visible condition, served on /status.
type State struct {
	State         string    `json:"state"`
	Connected     bool      `json:"connected"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Models        []string  `json:"models"`
	SelectedModel string    `json:"selected_model"`
	LastError     string    `json:"last_error"`
	LastExchange  time.Time `json:"last_exchange"`
	ClientID      string    `json:"client_id"`
	Version       string    `json:"version"`
}

// VersionInfo identifies the build, populated from ldflags by main.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildSHA  string `json:"build_sha"`
	BuildDate string `json:"build_date"`
}

var (
	stateMu   sync.RWMutex
	stateData = State{State: "disconnected"}
	buildInfo = VersionInfo{Version: "dev", BuildSHA: "unknown", BuildDate: "unknown"}
)

// SetBuildInfo records version metadata for /status and /version.
func SetBuildInfo(v, sha, date string) {
	buildInfo = VersionInfo{Version: v, BuildSHA: sha, BuildDate: date}
	stateMu.Lock()
	stateData.Version = v
	stateMu.Unlock()
}

// GetVersionInfo returns the recorded build metadata.
func GetVersionInfo() VersionInfo {
	return buildInfo
}

// GetState returns a snapshot of the current status.
func GetState() State {
	stateMu.RLock()
	defer stateMu.RUnlock()
	s := stateData
	s.Models = append([]string(nil), stateData.Models...)
	return s
}

// SetClientID records the client identifier shown in /status.
func SetClientID(id string) {
	stateMu.Lock()
	stateData.ClientID = id
	stateMu.Unlock()
}

func setStatusConnected(connected bool, host string, port int) {
	stateMu.Lock()
	stateData.Connected = connected
	stateData.Host = host
	stateData.Port = port
	if connected {
		stateData.State = "connected"
	} else if stateData.State == "connected" {
		stateData.State = "disconnected"
	}
	stateMu.Unlock()
}

func setStatusModels(models []string, selected string) {
	stateMu.Lock()
	stateData.Models = append([]string(nil), models...)
	stateData.SelectedModel = selected
	stateMu.Unlock()
}

func setStatusSelected(selected string) {
	stateMu.Lock()
	stateData.SelectedModel = selected
	stateMu.Unlock()
}

func setStatusError(msg string) {
	stateMu.Lock()
	stateData.LastError = msg
	stateMu.Unlock()
}

func setStatusExchange(at time.Time) {
	stateMu.Lock()
	stateData.LastExchange = at
	stateData.LastError = ""
	stateMu.Unlock()
}
