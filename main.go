package main

import "github.com/BorisDmv/post-store/internal/commands"

func main() {
	commands.Execute()
}
