package main

import "github.com/lit-response/triageboard/cmd"

func main() {
	cmd.Execute()
}
