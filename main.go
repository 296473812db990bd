package main

import "github.com/kozaktomas/face-monitor/cmd"

func main() {
	cmd.Execute()
}
