package main

import "github.com/harperdean/rocklens/cmd"

func main() {
	cmd.Execute()
}
