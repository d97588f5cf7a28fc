package main

import "github.com/JakeFAU/stagebridge/cmd"

func main() {
	cmd.Execute()
}
