package main

import "kiln/internal/kiln"

func main() {
	kiln.Main()
}
