package main

import "github.com/shaharia-lab/taskrunner/cmd"

func main() {
	cmd.Execute()
}
