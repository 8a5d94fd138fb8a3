// Package utils provides small shared helpers for the engram system.
package utils

// Version is the engram build version. Overridden at release time via
// -ldflags "-X github.com/engramhq/engram/pkg/utils.Version=...".
var Version = "0.1.0-dev"
