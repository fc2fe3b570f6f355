package main

import "github.com/Taichi-iskw/vidgraph/cmd"

func main() {
	cmd.Execute()
}
