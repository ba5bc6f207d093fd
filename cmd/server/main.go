// Mentor - multi-persona startup mentor server
package main

func main() {
	Execute()
}
