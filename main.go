package main

import "clientpulse/internal/app"

func main() {
	app.Main()
}
