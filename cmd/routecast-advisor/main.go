package main

import "github.com/lhildreth66/Routecast2-sub001/internal/cli"

func main() {
	cli.Execute()
}
