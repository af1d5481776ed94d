package main

import (
	"github.com/autopeer-io/seatlink/cmd/seatlink-probe/app"
)

func main() {
	app.NewApp().Run()
}
