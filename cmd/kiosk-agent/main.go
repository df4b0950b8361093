package main

import "github.com/oshokin/kiosk-updater/cmd/kiosk-agent/cmd"

func main() {
	cmd.Execute()
}
