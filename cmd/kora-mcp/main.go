package main

import "github.com/koraprotocol/kora-mcp/cmd/kora-mcp/cmd"

func main() {
	cmd.Execute()
}
