package main

import "github.com/kozaktomas/face-gallery/cmd"

func main() {
	cmd.Execute()
}
