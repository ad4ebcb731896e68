package web

import (
	"embed"
)

// staticFiles holds the run page. The binary serves it without any files on disk.
//
//go:embed static/*
var staticFiles embed.FS
