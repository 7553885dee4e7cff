package main

import "github.com/ChamsBouzaiene/sensei/cmd/sensei/commands"

func main() {
	commands.Execute()
}
