// This program performs administrative tasks for the canvas service.
package main

import "github.com/kaspixel/kaspixel/app/tooling/admin/cmd"

func main() {
	cmd.Execute()
}
