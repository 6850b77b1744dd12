package main

import "time"

// GlobalFlags holds persistent flags shared by local commands
type GlobalFlags struct {
	ConfigPath string
}

// RemoteFlags holds the control API connection used by status/start/stop
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Token      string
	Name       string
}
