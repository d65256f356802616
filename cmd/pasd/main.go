// Command pasd runs the encrypted secret-storage daemon.
package main

func main() {
	Execute()
}
