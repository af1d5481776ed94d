package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/seatlink/cmd/seatlink-agent/app"
)

func main() {
	app.NewApp().Run()
}
