//go:build tinygo

package main

import (
	"lcdvnc/app"
	"lcdvnc/hal"
)

func main() {
	app.Main(hal.New(), app.DefaultConfig())
}
