package main

import "github.com/mariks1/unipeople-notify/cmd"

func main() {
	cmd.Execute()
}
