package main

import "github.com/passgate/passgate/cmd"

func main() {
	cmd.Execute()
}
