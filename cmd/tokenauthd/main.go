package main

import "github.com/voyz/tokenauth/cmd/tokenauthd/cmd"

func main() {
	cmd.Execute()
}
