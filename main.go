package main

import "github.com/naka-gawa/milestone-sweeper/cmd"

func main() {
	cmd.Execute()
}
