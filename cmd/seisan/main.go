package main

import "github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/cmd/seisan/cmd"

func main() {
	cmd.Execute()
}
