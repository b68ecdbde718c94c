package main

import (
	"fedauction/cli/root"

	_ "fedauction/cli/commitment"
	_ "fedauction/cli/config"
	_ "fedauction/cli/get"
	_ "fedauction/cli/run"
)

func main() {
	root.Execute()
}
