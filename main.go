package main

import "github.com/chorus-run/chorus/cmd"

func main() {
	cmd.Execute()
}
