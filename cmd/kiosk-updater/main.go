package main

import "github.com/oshokin/kiosk-updater/cmd/kiosk-updater/cmd"

func main() {
	cmd.Execute()
}
