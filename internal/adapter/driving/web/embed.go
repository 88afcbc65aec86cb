package web

import "embed"

// StaticFS holds the embedded static assets (stylesheet and live-update JS).
//
//go:embed static/*
var StaticFS embed.FS
