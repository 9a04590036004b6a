// Command financectl drives the invoice workflow of the finance API from a terminal.
package main

func main() {
	Execute()
}
