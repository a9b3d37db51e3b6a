// cmd/napbridge/main.go
package main

func main() {
	Execute()
}
