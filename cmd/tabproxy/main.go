// Command tabproxy runs a MySQL-wire-protocol proxy that fronts a
// restricted-dialect backend for Tableau.
package main

import "github.com/nethalo/tabproxy/cmd"

func main() {
	cmd.Execute()
}
