package main

import (
	"go-lora-manager/cmd/lora-manager/cmd"
)

func main() {
	cmd.Execute()
}
