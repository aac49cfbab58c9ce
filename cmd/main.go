package main

import "saliency-heatmap/cmd/commands"

func main() {
	commands.Execute()
}
