// Command ledgerctl administers the points ledger from the command line:
// migrations, offline penalty calculation, penalties, waivers, bonuses,
// risk assessments and penalty summaries.
package main

import (
	"os"
)

func main() {
	c := newCLI()
	err := newRootCmd(c).Execute()
	c.close()
	if err != nil {
		os.Exit(1)
	}
}
