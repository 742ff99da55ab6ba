package main

import "github.com/dbsmedya/cdcpipe/cmd/cdcpipe/cmd"

func main() {
	cmd.Execute()
}
