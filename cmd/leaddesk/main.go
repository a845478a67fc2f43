package main

import "github.com/jmcleod/leaddesk/cmd/leaddesk/cmd"

func main() {
	cmd.Execute()
}
