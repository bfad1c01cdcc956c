package main

import "github.com/fcjr/sdburn/internal/cmd"

func main() {
	cmd.Execute()
}
