package main

import "github.com/girmesh03/Task-Manager-V9-sub000/internal/cmd"

func main() {
	cmd.Execute()
}
