package main

import "github.com/yarlson/coralph/cmd"

func main() {
	cmd.Execute()
}
