package main

import "github.com/MeKo-Tech/vinscan/cmd/vinscan/cmd"

func main() {
	cmd.Execute()
}
