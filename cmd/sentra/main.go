// Command sentra runs the tool-call security evaluation server.
package main

import "github.com/sentra-security/sentra/cmd/sentra/cmd"

func main() {
	cmd.Execute()
}
