package main

import "github.com/goliatone/go-library/cmd/librarian/commands"

func main() {
	commands.Execute()
}
