package main

import "github.com/ValentinKolb/andx/cmd"

func main() {
	cmd.Execute()
}
