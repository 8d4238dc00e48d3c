package main

import "lc/internal/lc"

func main() {
	lc.Main()
}
