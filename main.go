package main

import "animewatch/cmd"

func main() {
	cmd.Execute()
}
