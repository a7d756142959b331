package main

import "github.com/jmcleod/sslinker/cmd/sslinker/cmd"

func main() {
	cmd.Execute()
}
