package main

import "github.com/rushi32/IsoCode/cmd"

func main() {
	cmd.Execute()
}
