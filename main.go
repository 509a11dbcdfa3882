package main

import "github.com/camden-git/faceattend/cmd"

func main() {
	cmd.Execute()
}
