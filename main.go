package main

import "github.com/shouni/go-image-audit/cmd"

func main() {
	cmd.Execute()
}
