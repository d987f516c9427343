package main

import "github.com/pthm-cable/plantfate/cli"

func main() {
	cli.Execute()
}
