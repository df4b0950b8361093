package main

import "github.com/oshokin/kiosk-updater/cmd/kiosk-packager/cmd"

func main() {
	cmd.Execute()
}
