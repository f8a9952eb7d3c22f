// Command stack-linguist reports the language breakdown of a source tree.
package main

func main() {
	Execute()
}
