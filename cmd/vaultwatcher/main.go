package main

import "vault-watcher/internal/cli"

func main() {
	cli.Execute()
}
