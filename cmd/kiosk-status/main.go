package main

import "github.com/oshokin/kiosk-updater/cmd/kiosk-status/cmd"

func main() {
	cmd.Execute()
}
