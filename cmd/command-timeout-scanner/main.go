package main

import (
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/app"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/config"
)

func main() {
	app.Main(config.RoleScanner)
}
