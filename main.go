package main

import "github.com/frahmantamala/document-management/cmd"

func main() {
	cmd.Execute()
}
