// Command leadgen discovers, enriches, and scores local business leads.
package main

import (
	"github.com/JakeFAU/leadgen-pipeline/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
